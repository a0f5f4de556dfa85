package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/gateway"
	"github.com/vcscsvcscs/aura-health/apps/backend/internal/textutil"
	"github.com/vcscsvcscs/aura-health/apps/backend/pkg/model"
	"go.uber.org/zap"
)

var (
	// ErrItemNotFound is returned for ids the workspace does not track
	ErrItemNotFound = errors.New("item not found")
	// ErrUnsupportedMedia is returned when an upload is not an image
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrNotAnalyzed is returned when an item has no analysis result yet
	ErrNotAnalyzed = errors.New("item has not been analyzed")
	// ErrMedicationIndex is returned for a medication row that does not exist
	ErrMedicationIndex = errors.New("medication index out of range")
)

// Analyzer turns base64 encoded images into a structured result
type Analyzer interface {
	AnalyzePrescription(ctx context.Context, images []string) (*model.AnalysisResult, error)
}

// Persister stores an analysis result
type Persister interface {
	SavePrescription(ctx context.Context, result *model.AnalysisResult) error
}

// ImageArchive keeps uploaded images. Once an image is archived the item
// drops its in-memory copy and serves it from the archive.
type ImageArchive interface {
	UploadImage(ctx context.Context, blobName string, data []byte, contentType string) (string, error)
	DownloadImage(ctx context.Context, blobName string) ([]byte, error)
}

// TransitionFunc observes a status change of one item
type TransitionFunc func(itemID string, from, to model.ItemStatus)

// ItemFunc observes an item event
type ItemFunc func(itemID string)

// ItemSnapshot is a copy of an item and its result, if any
type ItemSnapshot struct {
	Item   model.UploadedItem
	Result *model.AnalysisResult
}

type trackedItem struct {
	item     model.UploadedItem
	payload  []byte
	archived bool
	result   *model.AnalysisResult
}

// AnalysisService owns the uploaded items and drives each one through
// pending -> analyzing -> {analyzed | failed}.
type AnalysisService struct {
	analyzer  Analyzer
	persister Persister
	archive   ImageArchive
	clock     clock.Clock
	logger    *zap.Logger

	mu    sync.RWMutex
	items map[string]*trackedItem
	order []string

	hooksMu       sync.RWMutex
	onIngest      []ItemFunc
	onTransition  []TransitionFunc
	onRemove      []ItemFunc
	onPersistFail []ItemFunc

	wg sync.WaitGroup
}

// NewAnalysisService creates a new AnalysisService. persister and archive
// are optional.
func NewAnalysisService(analyzer Analyzer, persister Persister, archive ImageArchive, clk clock.Clock, logger *zap.Logger) *AnalysisService {
	if clk == nil {
		clk = clock.New()
	}
	return &AnalysisService{
		analyzer:  analyzer,
		persister: persister,
		archive:   archive,
		clock:     clk,
		logger:    logger,
		items:     make(map[string]*trackedItem),
	}
}

// OnIngest registers fn to be called after an item is created
func (s *AnalysisService) OnIngest(fn ItemFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onIngest = append(s.onIngest, fn)
}

// OnTransition registers fn to be called after every status change
func (s *AnalysisService) OnTransition(fn TransitionFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onTransition = append(s.onTransition, fn)
}

// OnRemove registers fn to be called after an item is removed
func (s *AnalysisService) OnRemove(fn ItemFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onRemove = append(s.onRemove, fn)
}

// OnPersistenceFailure registers fn to be called when the best-effort
// persistence call for an item fails
func (s *AnalysisService) OnPersistenceFailure(fn ItemFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onPersistFail = append(s.onPersistFail, fn)
}

// Ingest reads r fully and creates a pending item for it. Analysis runs in
// the background; the returned item is a snapshot taken at creation.
// Uploads that are not images are rejected and create no item.
func (s *AnalysisService) Ingest(ctx context.Context, filename string, r io.Reader) (model.UploadedItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.UploadedItem{}, fmt.Errorf("failed to read upload %q: %w", filename, err)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		s.logger.Warn("rejected non-image upload",
			zap.String("filename", filename),
			zap.String("content_type", mtype.String()),
		)
		return model.UploadedItem{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}

	id := uuid.New().String()
	item := model.UploadedItem{
		ID:          id,
		Filename:    filename,
		Size:        textutil.FormatFileSize(int64(len(data))),
		SizeBytes:   int64(len(data)),
		ContentType: mtype.String(),
		PayloadRef:  payloadRef(id, filename, mtype.Extension()),
		UploadedAt:  s.clock.Now(),
		Status:      model.ItemStatusPending,
	}

	s.mu.Lock()
	s.items[id] = &trackedItem{item: item, payload: data}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.logger.Info("prescription image ingested",
		zap.String("item_id", id),
		zap.String("filename", filename),
		zap.String("size", item.Size),
	)
	s.notifyItem(s.ingestHooks(), id)

	// Background work must outlive the request that triggered it
	bg := context.WithoutCancel(ctx)

	if s.archive != nil {
		s.wg.Add(1)
		go s.archiveImage(bg, item, data)
	}

	s.wg.Add(1)
	go s.process(bg, id, data)

	return item, nil
}

func (s *AnalysisService) process(ctx context.Context, id string, data []byte) {
	defer s.wg.Done()

	encoded := base64.StdEncoding.EncodeToString(data)
	if !s.transition(id, model.ItemStatusPending, model.ItemStatusAnalyzing, nil) {
		return
	}

	result, err := s.analyzer.AnalyzePrescription(ctx, []string{encoded})
	if err == nil && result == nil {
		err = errors.New("analyzer returned no result")
	}
	if err != nil {
		s.logger.Warn("prescription analysis failed",
			zap.String("item_id", id),
			zap.String("failure_kind", gateway.Classify(err)),
			zap.Error(err),
		)
		s.transition(id, model.ItemStatusAnalyzing, model.ItemStatusFailed, nil)
		return
	}

	installed := result.Clone()
	if !s.transition(id, model.ItemStatusAnalyzing, model.ItemStatusAnalyzed, installed) {
		return
	}

	s.logger.Info("prescription analyzed",
		zap.String("item_id", id),
		zap.Int("medication_count", len(installed.Medications)),
	)

	if s.persister != nil {
		s.wg.Add(1)
		go s.persist(ctx, id, installed.Clone())
	}
}

// transition moves id from one status to the next. A result, when given, is
// installed in the same critical section. It returns false when the item is
// gone or is not in the expected status; late completions for removed items
// end here.
func (s *AnalysisService) transition(id string, from, to model.ItemStatus, result *model.AnalysisResult) bool {
	s.mu.Lock()
	tracked, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("discarding update for removed item",
			zap.String("item_id", id),
			zap.String("status", string(to)),
		)
		return false
	}
	if tracked.item.Status != from || !from.CanTransitionTo(to) {
		current := tracked.item.Status
		s.mu.Unlock()
		s.logger.Error("illegal status transition",
			zap.String("item_id", id),
			zap.String("current", string(current)),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return false
	}
	tracked.item.Status = to
	if result != nil {
		tracked.result = result
	}
	s.mu.Unlock()

	for _, fn := range s.transitionHooks() {
		fn(id, from, to)
	}
	return true
}

func (s *AnalysisService) persist(ctx context.Context, id string, result *model.AnalysisResult) {
	defer s.wg.Done()

	if err := s.persister.SavePrescription(ctx, result); err != nil {
		s.logger.Warn("best-effort persistence failed",
			zap.String("item_id", id),
			zap.String("failure_kind", gateway.Classify(err)),
			zap.Error(err),
		)
		s.notifyItem(s.persistFailHooks(), id)
		return
	}
	s.logger.Debug("prescription persisted", zap.String("item_id", id))
}

func (s *AnalysisService) archiveImage(ctx context.Context, item model.UploadedItem, data []byte) {
	defer s.wg.Done()

	if _, err := s.archive.UploadImage(ctx, item.PayloadRef, data, item.ContentType); err != nil {
		s.logger.Warn("image archive failed",
			zap.String("item_id", item.ID),
			zap.String("payload_ref", item.PayloadRef),
			zap.Error(err),
		)
		return
	}

	s.mu.Lock()
	if tracked, ok := s.items[item.ID]; ok {
		tracked.payload = nil
		tracked.archived = true
	}
	s.mu.Unlock()

	s.logger.Debug("image archived",
		zap.String("item_id", item.ID),
		zap.String("payload_ref", item.PayloadRef),
	)
}

// Get returns a snapshot of one item and its result
func (s *AnalysisService) Get(id string) (ItemSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracked, ok := s.items[id]
	if !ok {
		return ItemSnapshot{}, ErrItemNotFound
	}
	return ItemSnapshot{Item: tracked.item, Result: tracked.result.Clone()}, nil
}

// List returns snapshots of all items in ingestion order
func (s *AnalysisService) List() []model.UploadedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.UploadedItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.items[id].item)
	}
	return items
}

// Status returns the current status of one item
func (s *AnalysisService) Status(id string) (model.ItemStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracked, ok := s.items[id]
	if !ok {
		return "", ErrItemNotFound
	}
	return tracked.item.Status, nil
}

// Payload returns a copy of the uploaded bytes and their content type.
// Archived images are read back from the archive.
func (s *AnalysisService) Payload(ctx context.Context, id string) ([]byte, string, error) {
	s.mu.RLock()
	tracked, ok := s.items[id]
	if !ok {
		s.mu.RUnlock()
		return nil, "", ErrItemNotFound
	}
	contentType, ref := tracked.item.ContentType, tracked.item.PayloadRef
	if !tracked.archived {
		data := make([]byte, len(tracked.payload))
		copy(data, tracked.payload)
		s.mu.RUnlock()
		return data, contentType, nil
	}
	s.mu.RUnlock()

	data, err := s.archive.DownloadImage(ctx, ref)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read archived image %s: %w", ref, err)
	}
	return data, contentType, nil
}

// Medication returns one medication row of an analyzed item
func (s *AnalysisService) Medication(id string, index int) (model.MedicationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracked, ok := s.items[id]
	if !ok {
		return model.MedicationEntry{}, ErrItemNotFound
	}
	if tracked.result == nil {
		return model.MedicationEntry{}, ErrNotAnalyzed
	}
	if index < 0 || index >= len(tracked.result.Medications) {
		return model.MedicationEntry{}, fmt.Errorf("%w: %d", ErrMedicationIndex, index)
	}
	return tracked.result.Medications[index], nil
}

// Remove deletes an item and its result from any state. In-flight analysis
// is not cancelled; its completion is discarded.
func (s *AnalysisService) Remove(id string) error {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	delete(s.items, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("prescription item removed", zap.String("item_id", id))
	s.notifyItem(s.removeHooks(), id)
	return nil
}

// Len returns the number of tracked items
func (s *AnalysisService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Wait blocks until all background analysis, persistence and archive work
// started so far has finished.
func (s *AnalysisService) Wait() {
	s.wg.Wait()
}

func (s *AnalysisService) notifyItem(hooks []ItemFunc, id string) {
	for _, fn := range hooks {
		fn(id)
	}
}

func (s *AnalysisService) ingestHooks() []ItemFunc {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return s.onIngest
}

func (s *AnalysisService) transitionHooks() []TransitionFunc {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return s.onTransition
}

func (s *AnalysisService) removeHooks() []ItemFunc {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return s.onRemove
}

func (s *AnalysisService) persistFailHooks() []ItemFunc {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	return s.onPersistFail
}

func payloadRef(id, filename, ext string) string {
	base := textutil.Slugify(strings.TrimSuffix(path.Base(filename), path.Ext(filename)))
	if base == "" {
		base = "image"
	}
	return "prescriptions/" + id + "/" + base + ext
}
