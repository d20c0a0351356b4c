package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/scenegraph"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	mu     sync.Mutex
	graph  *datastructures.SceneGraph
	err    error
	jobs   []string
	closed bool
	// release blocks Process until it is closed
	release chan struct{}
}

func (p *fakePredictor) Process(jobID string, img image.Image, threshold float32) (*datastructures.SceneGraph, error) {
	p.mu.Lock()
	p.jobs = append(p.jobs, jobID)
	p.mu.Unlock()

	if p.release != nil {
		<-p.release
	}
	return p.graph, p.err
}

func (p *fakePredictor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.jobs...)
}

func (p *fakePredictor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePredictor) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var testGraph = &datastructures.SceneGraph{
	Objects: []datastructures.ObjectPrediction{
		{Label: "person", LabelID: 1, Score: 0.9, BBox: [4]float32{0.3, 0.5, 0.2, 0.6}},
		{Label: "bicycle", LabelID: 2, Score: 0.8, BBox: [4]float32{0.6, 0.6, 0.3, 0.3}},
	},
	Relationships: []datastructures.RelationshipPrediction{
		{SubjectID: 0, ObjectID: 1, Predicate: "riding", PredicateID: 1, Score: 0.82, Subject: "person", Object: "bicycle"},
	},
}

func newTestHandler(t *testing.T) *Handler {
	mr := miniredis.RunT(t)
	pool := commons.NewRedisPool(mr.Addr(), 5)
	t.Cleanup(func() { pool.Close() })

	dir := t.TempDir()
	return &Handler{
		Store:     commons.NewJobStore(pool, time.Hour),
		Layout:    commons.Layout{UploadsDir: filepath.Join(dir, "uploads"), OutputsDir: filepath.Join(dir, "outputs")},
		ModelInfo: datastructures.ModelInfo{Build: 3, BasedOn: "resnet50"},
	}
}

func upload(t *testing.T, h *Handler, jobID string) datastructures.PredictionRequest {
	filename := h.Layout.UploadPath(jobID, ".png")
	require.NoError(t, os.MkdirAll(filepath.Dir(filename), 0755))
	f, err := os.Create(filename)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 32, 24))))
	require.NoError(t, f.Close())

	return datastructures.PredictionRequest{Uuid: jobID, Filename: filename, Created: 1700000000, ConfidenceThreshold: 0.3}
}

func TestHandleSuccess(t *testing.T) {
	h := newTestHandler(t)
	jobID := "3f2b8c1e-5d6a-4b7c-8d9e-0f1a2b3c4d5e"
	req := upload(t, h, jobID)
	predictor := &fakePredictor{graph: testGraph}

	result := h.Handle(predictor, req)
	assert.Equal(t, datastructures.StatusDone, result.Status)
	assert.Equal(t, []string{jobID}, predictor.jobs)
	assert.Equal(t, testGraph.Objects, result.Objects)
	assert.Equal(t, "/outputs/"+jobID+"/3f2b8c1e_annotated.png", result.AnnotatedImageURL)
	assert.Equal(t, "/outputs/"+jobID+"/3f2b8c1e_graph.png", result.GraphURL)
	require.NotNil(t, result.ModelInfo)
	assert.Equal(t, int32(3), result.ModelInfo.Build)

	for _, name := range []string{h.Layout.AnnotatedImageName(jobID), h.Layout.GraphImageName(jobID), commons.ResultsFile} {
		_, err := os.Stat(filepath.Join(h.Layout.OutputDir(jobID), name))
		assert.NoError(t, err, name)
	}

	stored, err := h.Store.Get(jobID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, datastructures.StatusDone, stored.Status)
	assert.Len(t, stored.Relationships, 1)

	onDisk, err := h.Layout.ReadResult(jobID)
	require.NoError(t, err)
	require.NotNil(t, onDisk)
	assert.Equal(t, result.GraphURL, onDisk.GraphURL)

	_, err = os.Stat(h.Layout.UploadDir(jobID))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleNoObjects(t *testing.T) {
	h := newTestHandler(t)
	jobID := "11111111-5d6a-4b7c-8d9e-0f1a2b3c4d5e"
	req := upload(t, h, jobID)

	result := h.Handle(&fakePredictor{err: errors.Wrap(scenegraph.ErrNoObjectsDetected, "detecting")}, req)
	assert.Equal(t, datastructures.StatusFailed, result.Status)
	assert.Equal(t, datastructures.ReasonNoObjectsDetected, result.Reason)

	stored, err := h.Store.Get(jobID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, datastructures.ReasonNoObjectsDetected, stored.Reason)

	// Only the result is written for a failed job, no images.
	onDisk, err := h.Layout.ReadResult(jobID)
	require.NoError(t, err)
	require.NotNil(t, onDisk)
	assert.Equal(t, datastructures.StatusFailed, onDisk.Status)
	assert.Equal(t, datastructures.ReasonNoObjectsDetected, onDisk.Reason)
	_, err = os.Stat(filepath.Join(h.Layout.OutputDir(jobID), h.Layout.GraphImageName(jobID)))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleInternalError(t *testing.T) {
	h := newTestHandler(t)
	jobID := "22222222-5d6a-4b7c-8d9e-0f1a2b3c4d5e"
	req := upload(t, h, jobID)

	result := h.Handle(&fakePredictor{err: errors.Wrap(scenegraph.ErrLoad, "backbone failed")}, req)
	assert.Equal(t, datastructures.StatusFailed, result.Status)
	assert.Equal(t, datastructures.ReasonInternal, result.Reason)
	assert.Equal(t, internalErrorMessage, result.Error)

	onDisk, err := h.Layout.ReadResult(jobID)
	require.NoError(t, err)
	require.NotNil(t, onDisk)
	assert.Equal(t, datastructures.ReasonInternal, onDisk.Reason)

	// The image was never decoded, the predictor must not run.
	missing := datastructures.PredictionRequest{Uuid: "33333333-5d6a-4b7c-8d9e-0f1a2b3c4d5e", Filename: filepath.Join(t.TempDir(), "gone.png")}
	predictor := &fakePredictor{graph: testGraph}
	result = h.Handle(predictor, missing)
	assert.Equal(t, datastructures.ReasonInternal, result.Reason)
	assert.Empty(t, predictor.jobs)
}

func TestDispatcher(t *testing.T) {
	h := newTestHandler(t)

	var mu sync.Mutex
	var predictors []*fakePredictor
	factory := func() (Predictor, error) {
		mu.Lock()
		defer mu.Unlock()
		p := &fakePredictor{graph: testGraph}
		predictors = append(predictors, p)
		return p, nil
	}

	jobQueue := make(chan Job, 10)
	dispatcher := NewDispatcher(jobQueue, 3, factory, h)
	require.NoError(t, dispatcher.run())
	assert.Len(t, predictors, 3)

	jobIDs := []string{
		"aaaaaaaa-5d6a-4b7c-8d9e-0f1a2b3c4d5e",
		"bbbbbbbb-5d6a-4b7c-8d9e-0f1a2b3c4d5e",
		"cccccccc-5d6a-4b7c-8d9e-0f1a2b3c4d5e",
		"dddddddd-5d6a-4b7c-8d9e-0f1a2b3c4d5e",
	}
	for _, jobID := range jobIDs {
		jobQueue <- Job{PredictionRequest: upload(t, h, jobID)}
	}

	for _, jobID := range jobIDs {
		jobID := jobID
		assert.Eventually(t, func() bool {
			res, err := h.Store.Get(jobID)
			return err == nil && res != nil && res.Status == datastructures.StatusDone
		}, 10*time.Second, 10*time.Millisecond, jobID)
	}

	assert.Empty(t, dispatcher.stop())
	for _, p := range predictors {
		assert.True(t, p.isClosed())
	}
}

func TestDispatcherStopReturnsUnstartedJobs(t *testing.T) {
	h := newTestHandler(t)
	predictor := &fakePredictor{graph: testGraph, release: make(chan struct{})}
	factory := func() (Predictor, error) { return predictor, nil }

	jobQueue := make(chan Job, 10)
	dispatcher := NewDispatcher(jobQueue, 1, factory, h)
	require.NoError(t, dispatcher.run())

	jobIDs := []string{
		"aaaaaaaa-5d6a-4b7c-8d9e-0f1a2b3c4d5e",
		"bbbbbbbb-5d6a-4b7c-8d9e-0f1a2b3c4d5e",
		"cccccccc-5d6a-4b7c-8d9e-0f1a2b3c4d5e",
	}
	for _, jobID := range jobIDs {
		jobQueue <- Job{PredictionRequest: upload(t, h, jobID)}
	}
	// the only worker is busy with the first job
	require.Eventually(t, func() bool { return len(predictor.seen()) == 1 }, 5*time.Second, 10*time.Millisecond)

	stopped := make(chan []Job)
	go func() { stopped <- dispatcher.stop() }()

	// stop waits for the running job
	select {
	case <-stopped:
		t.Fatal("stop returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(predictor.release)

	var pending []Job
	select {
	case pending = <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher didn't stop")
	}
	require.Len(t, pending, 2)
	assert.Equal(t, jobIDs[1], pending[0].PredictionRequest.Uuid)
	assert.Equal(t, jobIDs[2], pending[1].PredictionRequest.Uuid)
	assert.Equal(t, jobIDs[:1], predictor.seen())
	assert.True(t, predictor.isClosed())

	res, err := h.Store.Get(jobIDs[0])
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, datastructures.StatusDone, res.Status)

	requeue(h.Store, pending)
	for _, jobID := range jobIDs[1:] {
		req, err := h.Store.Pop()
		require.NoError(t, err)
		require.NotNil(t, req)
		assert.Equal(t, jobID, req.Uuid)
	}
}

func TestDispatcherFactoryError(t *testing.T) {
	h := newTestHandler(t)

	calls := 0
	first := &fakePredictor{}
	factory := func() (Predictor, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return nil, errors.New("no onnxruntime")
	}

	dispatcher := NewDispatcher(make(chan Job), 2, factory, h)
	assert.Error(t, dispatcher.run())
	assert.Eventually(t, first.isClosed, time.Second, 10*time.Millisecond)
}

func TestConsume(t *testing.T) {
	h := newTestHandler(t)
	first := datastructures.PredictionRequest{Uuid: "aaaaaaaa-5d6a-4b7c-8d9e-0f1a2b3c4d5e", Filename: "a.png"}
	second := datastructures.PredictionRequest{Uuid: "bbbbbbbb-5d6a-4b7c-8d9e-0f1a2b3c4d5e", Filename: "b.jpg"}
	require.NoError(t, h.Store.Push(first))
	require.NoError(t, h.Store.Push(second))

	jobQueue := make(chan Job, 2)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		consume(h.Store, jobQueue, stop, 10*time.Millisecond)
		close(done)
	}()

	assert.Equal(t, first, (<-jobQueue).PredictionRequest)
	assert.Equal(t, second, (<-jobQueue).PredictionRequest)

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume didn't stop")
	}
}

func TestConsumeRequeuesOnStop(t *testing.T) {
	h := newTestHandler(t)
	req := datastructures.PredictionRequest{Uuid: "aaaaaaaa-5d6a-4b7c-8d9e-0f1a2b3c4d5e", Filename: "a.png"}
	require.NoError(t, h.Store.Push(req))

	// nobody reads the job queue, consume blocks after popping
	jobQueue := make(chan Job)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		consume(h.Store, jobQueue, stop, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, err := h.Store.QueueLength()
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume didn't stop")
	}

	back, err := h.Store.Pop()
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.Equal(t, req, *back)
}
