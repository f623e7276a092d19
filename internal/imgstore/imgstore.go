// Package imgstore implements the server's in-memory image store.
//
// The original homework server keeps images in a realloc'd C array, which
// forces every reader to hold the store lock (a grow can move the backing
// memory out from under a concurrent reader). Here the store is a
// segmented vector: images are appended into fixed-size pages, and a page,
// once allocated, is never moved or reallocated. A published index's
// *Image pointer therefore stays valid for the lifetime of the store, so
// readers that already have a pointer do not need to hold the store lock
// at all; only index allocation and publish need it.
package imgstore

import (
	"fmt"
	"sync"

	"github.com/bu-cs350/imgserve/internal/imgproc"
	"github.com/bu-cs350/imgserve/internal/wire"
)

const pageSize = 256

// ErrInvalidImageID is returned when a target ID does not name a
// published slot.
var ErrInvalidImageID = fmt.Errorf("imgstore: invalid image id")

// Store is a growable, append-only collection of images with stable
// per-index addresses.
type Store struct {
	mu    sync.Mutex
	pages [][]*imgproc.Image
	n     int
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Len reports the number of published images.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *Store) pageAndSlot(id int) (int, int) {
	return id / pageSize, id % pageSize
}

// at returns the image at id without locking; callers must already hold
// the lock or already have confirmed id < published length via Len/Get.
func (s *Store) at(id int) *imgproc.Image {
	page, slot := s.pageAndSlot(id)
	return s.pages[page][slot]
}

// Get returns the image at id. The returned pointer is stable: it is
// never invalidated by subsequent Register/Publish calls to other
// indices (see package doc).
func (s *Store) Get(id uint64) (*imgproc.Image, error) {
	s.mu.Lock()
	n := s.n
	s.mu.Unlock()

	if id >= uint64(n) {
		return nil, ErrInvalidImageID
	}
	s.mu.Lock()
	img := s.at(int(id))
	s.mu.Unlock()
	return img, nil
}

// Register installs img as a new slot and returns its ID, equal to the
// pre-insert store length. It does not touch turn-gate state:
// internal/turnstile creates an image's gate, empty, on first use;
// imgstore only owns image bytes.
func (s *Store) Register(img *imgproc.Image) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.n
	s.growLocked(id)
	page, slot := s.pageAndSlot(id)
	s.pages[page][slot] = img
	s.n++
	return uint64(id)
}

// Publish installs result under the rules of execute() in §4.2: if
// overwrite, it replaces the image at targetID and returns targetID;
// otherwise it appends result as a new slot and returns the new ID.
func (s *Store) Publish(targetID uint64, result *imgproc.Image, overwrite bool) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if overwrite {
		if targetID >= uint64(s.n) {
			return 0, ErrInvalidImageID
		}
		page, slot := s.pageAndSlot(int(targetID))
		s.pages[page][slot] = result
		return targetID, nil
	}

	id := s.n
	s.growLocked(id)
	page, slot := s.pageAndSlot(id)
	s.pages[page][slot] = result
	s.n++
	return uint64(id), nil
}

// growLocked ensures the page holding index id exists. Callers must hold s.mu.
func (s *Store) growLocked(id int) {
	page := id / pageSize
	for page >= len(s.pages) {
		s.pages = append(s.pages, make([]*imgproc.Image, pageSize))
	}
}

// Apply executes op against the image at targetID and publishes the
// result per Publish's overwrite rule. RETRIEVE is a no-op transform: it
// yields the current image unpublished and unchanged. This is the single
// entry point workers use once they hold the per-image turn (see
// internal/turnstile); it never blocks on anything but the store's own
// short-held allocation lock.
func (s *Store) Apply(op wire.Op, targetID uint64, overwrite bool) (resultID uint64, img *imgproc.Image, err error) {
	src, err := s.Get(targetID)
	if err != nil {
		return 0, nil, err
	}

	if op == wire.OpRetrieve {
		return targetID, src, nil
	}

	out, err := imgproc.Apply(op, src)
	if err != nil {
		return 0, nil, err
	}

	id, err := s.Publish(targetID, out, overwrite)
	if err != nil {
		return 0, nil, err
	}
	return id, out, nil
}
