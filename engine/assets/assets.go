package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/restir/engine/assets/loaders"
	"github.com/spaghettifunk/restir/engine/core"
)

type AssetType int

const (
	AssetTypeNone AssetType = iota
	// AssetTypeShaderSource is GLSL compute source compiled by the shader system.
	AssetTypeShaderSource
	// AssetTypeShaderBinary is compiled SPIR-V.
	AssetTypeShaderBinary
	AssetTypeConfig
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeShaderSource:
		return "shader-source"
	case AssetTypeShaderBinary:
		return "shader-binary"
	case AssetTypeConfig:
		return "config"
	}
	return "none"
}

type AssetInfo struct {
	Path         string
	Type         AssetType
	LastModified time.Time
}

// changeBuffer is how many change notifications may queue up before new
// ones are dropped.
const changeBuffer = 64

// AssetManager indexes an asset directory and watches it for changes. Every
// created or written file that is a known asset is reported on Changes.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	changes  chan string
	root     string
	started  bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[AssetType]Loader),
		fsnotify: fsWatch,
		changes:  make(chan string, changeBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes assetsDir recursively and starts watching it.
func (am *AssetManager) Initialize(assetsDir string) error {
	am.root = filepath.Clean(assetsDir)
	if err := am.addRecursive(am.root); err != nil {
		return err
	}

	// Register loaders
	am.registerLoader(AssetTypeShaderBinary, &loaders.ShaderLoader{})
	am.registerLoader(AssetTypeShaderSource, &loaders.SourceLoader{})
	am.registerLoader(AssetTypeConfig, &loaders.SourceLoader{})

	am.started = true
	go am.start()
	core.LogInfo("watching %d assets under %s", am.Len(), am.root)
	return nil
}

// Changes delivers the path of every asset created or written after Initialize.
func (am *AssetManager) Changes() <-chan string {
	return am.changes
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset reads an indexed asset with the loader for its type.
func (am *AssetManager) LoadAsset(path string) ([]byte, error) {
	path = filepath.Clean(path)
	am.mutex.RLock()
	asset, exists := am.assets[path]
	loader, loaderExists := am.loaders[asset.Type]
	am.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("asset not found: %s", path)
	}
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Load(path)
}

// Assets lists the indexed paths of the given type in lexical order.
func (am *AssetManager) Assets(assetType AssetType) []string {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []string
	for p, a := range am.assets {
		if a.Type == assetType {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	a, ok := am.assets[filepath.Clean(path)]
	return a, ok
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Shutdown stops the watcher and closes Changes.
func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	if !am.started {
		close(am.changes)
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handle(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			close(am.changes)
			return
		}
	}
}

func (am *AssetManager) handle(e fsnotify.Event) {
	name := filepath.Clean(e.Name)
	s, err := os.Stat(name)
	if err == nil && s.IsDir() {
		if e.Has(fsnotify.Create) {
			if err := am.watchRecursive(name); err != nil {
				core.LogWarn("asset watcher: cannot watch %s: %s", name, err)
			}
		}
		return
	}
	if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
		if am.index(name) {
			am.notify(name)
		}
	}
	// A deleted path can't be stat'ed; it is simply dropped from the index.
	if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		am.removeAsset(name)
	}
}

func (am *AssetManager) notify(path string) {
	select {
	case am.changes <- path:
	default:
		core.LogWarn("asset change queue full, dropping %s", path)
	}
}

// watchRecursive adds all directories under path to the watch list and indexes their files.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.index(filepath.Clean(walkPath))
		return nil
	})
}

// index records a file that is a known asset and reports whether it was one.
func (am *AssetManager) index(path string) bool {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}
	modified := time.Now()
	if s, err := os.Stat(path); err == nil {
		modified = s.ModTime()
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:         path,
		Type:         assetType,
		LastModified: modified,
	}
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func determineAssetType(path string) AssetType {
	switch filepath.Ext(path) {
	case ".comp", ".glsl":
		return AssetTypeShaderSource
	case ".spv":
		return AssetTypeShaderBinary
	case ".toml":
		return AssetTypeConfig
	default:
		return AssetTypeNone
	}
}
