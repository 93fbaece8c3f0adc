package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/portailagence/knowledgeflow/internal/models"
)

// In-memory stand-ins for the GCS/Firestore/worker seams. They live behind
// the same small interfaces the functions consume in production.

type fakeBlobStore struct {
	mu       sync.Mutex
	puts     []string // filenames, in completion order
	texts    map[string]string
	removed  []string
	failPut  map[string]bool
	putDelay map[string]time.Duration
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		texts:    map[string]string{},
		failPut:  map[string]bool{},
		putDelay: map[string]time.Duration{},
	}
}

func (f *fakeBlobStore) stored(filename string) *StoredObject {
	return &StoredObject{
		URL:        "https://storage.googleapis.com/docs-bucket/test/" + filename,
		Bucket:     "docs-bucket",
		ObjectPath: "test/" + filename,
		FileType:   FileTypeOf(filename),
	}
}

func (f *fakeBlobStore) Put(ctx context.Context, kind MediaKind, category, filename string, r io.Reader) (*StoredObject, error) {
	if d := f.putDelay[filename]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut[filename] {
		return nil, fmt.Errorf("%w: synthetic failure for %s", ErrUpload, filename)
	}
	content, _ := io.ReadAll(r)
	f.puts = append(f.puts, filename)
	f.texts[filename] = string(content)
	return f.stored(filename), nil
}

func (f *fakeBlobStore) PutText(ctx context.Context, category, filename, content string) (*StoredObject, error) {
	return f.Put(ctx, KindDocuments, category, filename, strings.NewReader(content))
}

func (f *fakeBlobStore) Remove(ctx context.Context, fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, fileURL)
	return nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	nextID    int
	created   []*models.KnowledgeSource
	statuses  map[string]models.Status
	byURL     map[string]*models.KnowledgeSource
	createErr error
	claimErr  error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		statuses: map[string]models.Status{},
		byURL:    map[string]*models.KnowledgeSource{},
	}
}

func (f *fakeCatalog) Create(ctx context.Context, src models.KnowledgeSource) (*models.KnowledgeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	src.ID = fmt.Sprintf("src-%d", f.nextID)
	src.Status = models.StatusPending
	src.CreatedAt = time.Now()
	f.created = append(f.created, &src)
	f.statuses[src.ID] = src.Status
	f.byURL[src.FileURL] = &src
	return &src, nil
}

func (f *fakeCatalog) ClaimDispatch(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if f.statuses[id] == models.StatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrDispatchInFlight, id)
	}
	f.statuses[id] = models.StatusProcessing
	for _, src := range f.created {
		if src.ID == id {
			claimed := *src
			claimed.Status = models.StatusProcessing
			claimed.DispatchedAt = time.Now()
			return &claimed, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
}

func (f *fakeCatalog) FindByFileURL(ctx context.Context, fileURL string) (*models.KnowledgeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byURL[fileURL], nil
}

func (f *fakeCatalog) SetStatus(ctx context.Context, id string, to models.Status, errDetails string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = to
	return nil
}

func (f *fakeCatalog) List(ctx context.Context) ([]*models.KnowledgeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.KnowledgeSource, 0, len(f.created))
	for i := len(f.created) - 1; i >= 0; i-- { // newest first
		src := *f.created[i]
		src.Status = f.statuses[src.ID]
		out = append(out, &src)
	}
	return out, nil
}

func (f *fakeCatalog) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, src := range f.created {
		if src.ID == id {
			f.created = append(f.created[:i], f.created[i+1:]...)
			delete(f.statuses, id)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
}

func (f *fakeCatalog) Reset(ctx context.Context, id string) (*models.KnowledgeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, src := range f.created {
		if src.ID == id {
			f.statuses[id] = models.StatusPending
			reset := *src
			reset.Status = models.StatusPending
			return &reset, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
}

func (f *fakeCatalog) statusOf(id string) models.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string // source ids, in call order
	failIDs    map[string]bool
	statuses   *fakeCatalog
}

func newFakeDispatcher(statuses *fakeCatalog) *fakeDispatcher {
	return &fakeDispatcher{failIDs: map[string]bool{}, statuses: statuses}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, src *models.KnowledgeSource) error {
	f.mu.Lock()
	fail := f.failIDs[src.ID]
	if !fail {
		f.dispatched = append(f.dispatched, src.ID)
	}
	f.mu.Unlock()
	if fail {
		// The real trigger marks the record before returning.
		if f.statuses != nil {
			_ = f.statuses.SetStatus(ctx, src.ID, models.StatusError, "synthetic dispatch failure")
		}
		return fmt.Errorf("%w: synthetic dispatch failure", ErrDispatch)
	}
	return nil
}
