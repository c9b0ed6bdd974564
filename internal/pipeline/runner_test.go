package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceshare/internal/detector"
	"github.com/your-org/faceshare/internal/matching"
	"github.com/your-org/faceshare/internal/models"
	"github.com/your-org/faceshare/internal/storage"
)

// memStore is an in-memory Store that enforces the same forward-only
// status transitions as the SQL layer.
type memStore struct {
	mu         sync.Mutex
	photos     map[uuid.UUID]*models.Photo
	users      map[uuid.UUID]*models.User
	candidates []models.FaceDescriptor
	shares     []models.SharedPhoto

	// statusLog records every successful transition per photo.
	statusLog map[uuid.UUID][]models.ProcessingStatus

	candidatesErr error
	sharesErr     error
}

func newMemStore() *memStore {
	return &memStore{
		photos:    make(map[uuid.UUID]*models.Photo),
		users:     make(map[uuid.UUID]*models.User),
		statusLog: make(map[uuid.UUID][]models.ProcessingStatus),
	}
}

func (s *memStore) addUser(email string) uuid.UUID {
	id := uuid.New()
	s.users[id] = &models.User{ID: id, Email: email}
	return id
}

func (s *memStore) addDescriptor(userID uuid.UUID, embedding []float32) {
	s.candidates = append(s.candidates, models.FaceDescriptor{
		ID:        uuid.New(),
		UserID:    userID,
		Embedding: embedding,
	})
}

func (s *memStore) addPhoto(ownerID uuid.UUID, status models.ProcessingStatus) *models.Photo {
	id := uuid.New()
	p := &models.Photo{
		ID:        id,
		UserID:    ownerID,
		FileName:  "photo.jpg",
		ObjectKey: "photos/" + ownerID.String() + "/" + id.String() + ".jpg",
		Status:    status,
	}
	s.photos[p.ID] = p
	return p
}

func (s *memStore) GetPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdatePhotoStatus(_ context.Context, id uuid.UUID, next models.ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[id]
	if !ok {
		return storage.ErrInvalidTransition
	}
	if !p.Status.CanTransition(next) {
		return storage.ErrInvalidTransition
	}
	p.Status = next
	s.statusLog[id] = append(s.statusLog[id], next)
	return nil
}

func (s *memStore) SetFacesDetected(_ context.Context, id uuid.UUID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[id]
	if !ok {
		return errors.New("photo not found")
	}
	p.FacesDetected = count
	return nil
}

func (s *memStore) MatchCandidates(_ context.Context, _ float64) ([]models.FaceDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidatesErr != nil {
		return nil, s.candidatesErr
	}
	return append([]models.FaceDescriptor(nil), s.candidates...), nil
}

func (s *memStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) CreateSharedPhotos(_ context.Context, shares []models.SharedPhoto) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sharesErr != nil {
		return 0, s.sharesErr
	}
	created := 0
	for _, sh := range shares {
		dup := false
		for _, existing := range s.shares {
			if existing.PhotoID == sh.PhotoID && existing.RecipientID == sh.RecipientID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		sh.ID = uuid.New()
		s.shares = append(s.shares, sh)
		created++
	}
	return created, nil
}

// memBlobs serves photo bytes by object key.
type memBlobs struct {
	objects map[string][]byte
	err     error
}

func (b *memBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return data, nil
}

// stubDetector returns a canned result or error, or panics on demand.
type stubDetector struct {
	result *detector.Result
	err    error
	panics bool
	calls  int
}

func (d *stubDetector) Detect(_ context.Context, _ []byte, _ string) (*detector.Result, error) {
	d.calls++
	if d.panics {
		panic("detector blew up")
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

// eventRecorder captures published outcome events.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.PhotoProcessed
}

func (e *eventRecorder) PublishProcessed(_ context.Context, _ string, event interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event.(models.PhotoProcessed))
	return nil
}

func newTestRunner(store *memStore, blobs *memBlobs, det detector.Detector, events EventPublisher) *Runner {
	return NewRunner(store, blobs, det, matching.New(0.6), events, 0.5)
}

func taskFor(photo *models.Photo) models.PhotoTask {
	return models.PhotoTask{
		PhotoID:       photo.ID,
		OwnerID:       photo.UserID,
		ObjectKey:     photo.ObjectKey,
		CorrelationID: uuid.NewString(),
	}
}

func TestProcessMatchAndShare(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	friend := store.addUser("friend@example.com")
	store.addDescriptor(friend, []float32{0, 0, 0})

	photo := store.addPhoto(owner, models.StatusPending)
	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{result: &detector.Result{
		FaceCount:   1,
		Descriptors: [][]float32{{0.1, 0.1, 0.1}},
	}}
	events := &eventRecorder{}

	runner := newTestRunner(store, blobs, det, events)
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	got := store.photos[photo.ID]
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.FacesDetected)

	require.Len(t, store.shares, 1)
	assert.Equal(t, photo.ID, store.shares[0].PhotoID)
	assert.Equal(t, friend, store.shares[0].RecipientID)
	assert.True(t, store.shares[0].Delivered)

	// The run moved through PROCESSING before completing.
	assert.Equal(t, []models.ProcessingStatus{
		models.StatusProcessing,
		models.StatusCompleted,
	}, store.statusLog[photo.ID])

	require.Len(t, events.events, 1)
	outcome := events.events[0]
	assert.Equal(t, models.StatusCompleted, outcome.Status)
	assert.Equal(t, 1, outcome.FacesDetected)
	assert.Equal(t, []uuid.UUID{friend}, outcome.MatchedUserIDs)
	assert.Equal(t, 1, outcome.SharesCreated)
}

func TestProcessDetectorUnavailable(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{err: detector.ErrUnavailable}
	events := &eventRecorder{}

	runner := newTestRunner(store, blobs, det, events)
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	got := store.photos[photo.ID]
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 0, got.FacesDetected)
	assert.Empty(t, store.shares)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.StatusFailed, events.events[0].Status)
}

func TestProcessMalformedResponseFails(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{err: detector.ErrMalformed}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	assert.Equal(t, models.StatusFailed, store.photos[photo.ID].Status)
}

func TestProcessZeroFacesCompletes(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	friend := store.addUser("friend@example.com")
	store.addDescriptor(friend, []float32{0, 0, 0})
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{result: &detector.Result{FaceCount: 0}}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	got := store.photos[photo.ID]
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 0, got.FacesDetected)
	assert.Empty(t, store.shares)
}

func TestProcessOwnerNeverSharedWith(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	store.addDescriptor(owner, []float32{0, 0, 0})
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{result: &detector.Result{
		FaceCount:   1,
		Descriptors: [][]float32{{0.1, 0.1, 0.1}},
	}}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	// The owner matched their own photo, which completes without a share.
	assert.Equal(t, models.StatusCompleted, store.photos[photo.ID].Status)
	assert.Empty(t, store.shares)
}

func TestProcessOneShareDespiteMultipleFaceHits(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	friend := store.addUser("friend@example.com")
	store.addDescriptor(friend, []float32{0, 0, 0})
	store.addDescriptor(friend, []float32{0.05, 0, 0})
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	// Two faces in the photo, both close to the same user.
	det := &stubDetector{result: &detector.Result{
		FaceCount:   2,
		Descriptors: [][]float32{{0.1, 0, 0}, {0.02, 0.02, 0}},
	}}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	require.Len(t, store.shares, 1)
	assert.Equal(t, friend, store.shares[0].RecipientID)
}

func TestProcessMultipleRecipients(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	alice := store.addUser("alice@example.com")
	bob := store.addUser("bob@example.com")
	store.addDescriptor(alice, []float32{0, 0, 0})
	store.addDescriptor(bob, []float32{5, 5, 5})
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{result: &detector.Result{
		FaceCount:   2,
		Descriptors: [][]float32{{0.1, 0.1, 0.1}, {5.1, 5.1, 5.1}},
	}}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	require.Len(t, store.shares, 2)
	recipients := []uuid.UUID{store.shares[0].RecipientID, store.shares[1].RecipientID}
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, recipients)
}

func TestProcessMissingRecipientSkipped(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	friend := store.addUser("friend@example.com")
	ghost := uuid.New() // descriptor exists, user record does not
	store.addDescriptor(friend, []float32{0, 0, 0})
	store.addDescriptor(ghost, []float32{5, 5, 5})
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{result: &detector.Result{
		FaceCount:   2,
		Descriptors: [][]float32{{0.1, 0.1, 0.1}, {5.1, 5.1, 5.1}},
	}}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	// The vanished recipient does not cost the real one their delivery.
	assert.Equal(t, models.StatusCompleted, store.photos[photo.ID].Status)
	require.Len(t, store.shares, 1)
	assert.Equal(t, friend, store.shares[0].RecipientID)
}

func TestProcessRedeliveredTerminalTaskIsNoOp(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	photo := store.addPhoto(owner, models.StatusCompleted)

	det := &stubDetector{result: &detector.Result{FaceCount: 1, Descriptors: [][]float32{{0, 0, 0}}}}
	runner := newTestRunner(store, &memBlobs{}, det, &eventRecorder{})

	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	assert.Equal(t, models.StatusCompleted, store.photos[photo.ID].Status)
	assert.Zero(t, det.calls, "a settled photo must not be re-detected")
	assert.Empty(t, store.statusLog[photo.ID])
}

func TestProcessProcessingTaskIsNoOp(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	photo := store.addPhoto(owner, models.StatusProcessing)

	det := &stubDetector{}
	runner := newTestRunner(store, &memBlobs{}, det, &eventRecorder{})

	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))
	assert.Zero(t, det.calls)
}

func TestProcessUnknownPhotoReturnsError(t *testing.T) {
	store := newMemStore()
	runner := newTestRunner(store, &memBlobs{}, &stubDetector{}, &eventRecorder{})

	err := runner.Process(context.Background(), models.PhotoTask{PhotoID: uuid.New()})
	require.Error(t, err)
}

func TestProcessMissingObjectFails(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	photo := store.addPhoto(owner, models.StatusPending)

	runner := newTestRunner(store, &memBlobs{objects: map[string][]byte{}}, &stubDetector{}, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	assert.Equal(t, models.StatusFailed, store.photos[photo.ID].Status)
}

func TestProcessPanicBecomesFailed(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{panics: true}
	events := &eventRecorder{}

	runner := newTestRunner(store, blobs, det, events)
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	assert.Equal(t, models.StatusFailed, store.photos[photo.ID].Status)
	require.Len(t, events.events, 1)
	assert.Equal(t, models.StatusFailed, events.events[0].Status)
}

func TestProcessShareFailureFailsRun(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	friend := store.addUser("friend@example.com")
	store.addDescriptor(friend, []float32{0, 0, 0})
	store.sharesErr = errors.New("db down")
	photo := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{photo.ObjectKey: []byte("jpeg")}}
	det := &stubDetector{result: &detector.Result{
		FaceCount:   1,
		Descriptors: [][]float32{{0.1, 0.1, 0.1}},
	}}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(photo)))

	assert.Equal(t, models.StatusFailed, store.photos[photo.ID].Status)
}

func TestProcessFailureDoesNotAffectOtherPhotos(t *testing.T) {
	store := newMemStore()
	owner := store.addUser("owner@example.com")
	friend := store.addUser("friend@example.com")
	store.addDescriptor(friend, []float32{0, 0, 0})

	failing := store.addPhoto(owner, models.StatusPending)
	healthy := store.addPhoto(owner, models.StatusPending)

	blobs := &memBlobs{objects: map[string][]byte{
		healthy.ObjectKey: []byte("jpeg"),
		// failing photo's object is missing
	}}
	det := &stubDetector{result: &detector.Result{
		FaceCount:   1,
		Descriptors: [][]float32{{0.1, 0.1, 0.1}},
	}}

	runner := newTestRunner(store, blobs, det, &eventRecorder{})
	require.NoError(t, runner.Process(context.Background(), taskFor(failing)))
	require.NoError(t, runner.Process(context.Background(), taskFor(healthy)))

	assert.Equal(t, models.StatusFailed, store.photos[failing.ID].Status)
	assert.Equal(t, models.StatusCompleted, store.photos[healthy.ID].Status)
	require.Len(t, store.shares, 1)
	assert.Equal(t, healthy.ID, store.shares[0].PhotoID)
}
