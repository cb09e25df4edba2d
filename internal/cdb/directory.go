package cdb

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// stabilityThreshold is how long a new .cdb file must sit unchanged before
// the directory reader opens it, avoiding a reader racing an in-progress
// writer's rename.
const stabilityThreshold = 500 * time.Millisecond

// Directory is a multi-file CDB64 reader: it holds every .cdb file in a
// directory open simultaneously and answers Get by probing each in
// lexicographic filename order, newest-first, stopping at the first hit.
// An fsnotify watcher keeps the
// open set in sync as build-and-rename cycles add or replace files, with a
// debounce timer so a file is only opened once it has sat unchanged past
// the stability threshold.
type Directory struct {
	dir string
	log *logrus.Entry

	mu      sync.RWMutex
	readers map[string]*Reader // filename -> open reader
	order   []string           // filenames, lexicographically descending

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// OpenDirectory opens every *.cdb file already present in dir and starts
// watching it for additions and removals.
func OpenDirectory(dir string, log *logrus.Logger) (*Directory, error) {
	if log == nil {
		log = logrus.New()
	}
	d := &Directory{
		dir:     dir,
		log:     log.WithField("component", "cdb.directory"),
		readers: make(map[string]*Reader),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.cdb"))
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if err := d.openFile(filepath.Base(m)); err != nil {
			d.log.WithError(err).WithField("file", m).Warn("skipping unreadable cdb file")
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		d.closeAll()
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		d.closeAll()
		return nil, err
	}
	d.watcher = w

	go d.watchLoop()
	return d, nil
}

func (d *Directory) openFile(name string) error {
	full := filepath.Join(d.dir, name)
	r, err := Open(full)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.readers[name]; ok {
		old.Close()
	} else {
		d.order = append(d.order, name)
		sort.Sort(sort.Reverse(sort.StringSlice(d.order)))
	}
	d.readers[name] = r
	return nil
}

func (d *Directory) removeFile(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.readers[name]; ok {
		r.Close()
		delete(d.readers, name)
	}
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Get probes every open file newest-filename-first and returns the first
// hit.
func (d *Directory) Get(key []byte) ([]byte, bool, error) {
	d.mu.RLock()
	order := make([]string, len(d.order))
	copy(order, d.order)
	readers := make(map[string]*Reader, len(d.readers))
	for k, v := range d.readers {
		readers[k] = v
	}
	d.mu.RUnlock()

	for _, name := range order {
		r, ok := readers[name]
		if !ok {
			continue // removed between snapshot and probe
		}
		v, ok, err := r.Get(key)
		if err != nil {
			// A file unlinked mid-read races the probe; re-verify it is
			// still tracked before surfacing the error.
			d.mu.RLock()
			_, stillTracked := d.readers[name]
			d.mu.RUnlock()
			if !stillTracked {
				continue
			}
			return nil, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// GetValue looks up key across the directory and decodes it as a Value.
func (d *Directory) GetValue(key []byte) (Value, bool, error) {
	raw, ok, err := d.Get(key)
	if err != nil || !ok {
		return Value{}, ok, err
	}
	v, err := Decode(raw)
	return v, true, err
}

func (d *Directory) watchLoop() {
	defer close(d.doneCh)

	pending := make(map[string]*time.Timer)
	var mu sync.Mutex

	trigger := func(name string) {
		mu.Lock()
		if t, ok := pending[name]; ok {
			t.Stop()
		}
		pending[name] = time.AfterFunc(stabilityThreshold, func() {
			if err := d.openFile(name); err != nil {
				d.log.WithError(err).WithField("file", name).Warn("failed to open new cdb file")
			}
			mu.Lock()
			delete(pending, name)
			mu.Unlock()
		})
		mu.Unlock()
	}

	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".cdb" {
				continue
			}
			name := filepath.Base(ev.Name)
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				trigger(name)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				d.removeFile(name)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.WithError(err).Warn("cdb directory watcher error")
		case <-d.stopCh:
			return
		}
	}
}

func (d *Directory) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.readers {
		r.Close()
	}
	d.readers = make(map[string]*Reader)
	d.order = nil
}

// Close stops the watcher and closes every open file.
func (d *Directory) Close() error {
	if d.watcher != nil {
		close(d.stopCh)
		d.watcher.Close()
		<-d.doneCh
	}
	d.closeAll()
	return nil
}
