package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shotlate/internal/classify"
	"shotlate/internal/domain"
	"shotlate/internal/imagecodec"
	"shotlate/internal/infra"
	"shotlate/internal/providers"
)

type reply struct {
	raw classify.Raw
	err error
}

type fakeAdapter struct {
	mu           sync.Mutex
	replies      map[string]reply
	calls        []string
	instructions []string
	configs      []domain.ProviderConfig
	onCall       func(name string)
}

func (f *fakeAdapter) Name() string                     { return "fake" }
func (f *fakeAdapter) DefaultModel() string             { return "fake-model" }
func (f *fakeAdapter) SupportsModerationOverride() bool { return false }
func (f *fakeAdapter) StopCodes() classify.Table {
	return classify.Table{Success: []string{"done"}, Blocked: []string{"blocked"}}
}

func (f *fakeAdapter) Translate(_ context.Context, img imagecodec.TransportImage, instruction string, cfg domain.ProviderConfig) (classify.Raw, error) {
	name := string(img.Data)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.instructions = append(f.instructions, instruction)
	f.configs = append(f.configs, cfg)
	onCall := f.onCall
	rep, ok := f.replies[name]
	f.mu.Unlock()
	if onCall != nil {
		onCall(name)
	}
	if !ok {
		return classify.Raw{Provider: "fake", StopCode: "done", Text: "translated " + name}, nil
	}
	return rep.raw, rep.err
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// passthroughEncoder uses the raw bytes as the transport payload so the fake
// adapter can tell items apart.
type passthroughEncoder struct{}

func (passthroughEncoder) Encode(raw []byte) (imagecodec.TransportImage, error) {
	if len(raw) == 0 {
		return imagecodec.TransportImage{}, fmt.Errorf("%w: empty image", domain.ErrDecode)
	}
	return imagecodec.TransportImage{MIMEType: "image/png", Data: raw}, nil
}

func newOrchestrator(adapter providers.Adapter, mutate func(*Options)) *Orchestrator {
	opts := Options{
		Registry: providers.NewRegistry(adapter),
		Encoder:  passthroughEncoder{},
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func makeJob(n int) domain.TranslationJob {
	items := make([]domain.ImageItem, n)
	for i := range items {
		name := fmt.Sprintf("img%02d", i)
		items[i] = domain.ImageItem{Name: name + ".png", Data: []byte(name)}
	}
	return domain.TranslationJob{
		Items:          items,
		Provider:       domain.ProviderConfig{Provider: "fake", Credential: "secret"},
		SourceLanguage: domain.SourceJapanese,
		Context:        domain.ContextGame,
	}
}

type progressLog struct {
	mu     sync.Mutex
	events []domain.Progress
}

func (p *progressLog) record(ev domain.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func TestRunAllSucceed(t *testing.T) {
	adapter := &fakeAdapter{}
	orch := newOrchestrator(adapter, nil)
	var progress progressLog

	report, err := orch.Run(context.Background(), makeJob(3), progress.record)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != domain.JobCompleted {
		t.Fatalf("State = %q, want %q", report.State, domain.JobCompleted)
	}
	if len(report.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(report.Results))
	}
	for i, res := range report.Results {
		if res.Status != domain.StatusSuccess {
			t.Fatalf("result %d status = %q", i, res.Status)
		}
		want := fmt.Sprintf("img%02d.png", i)
		if res.Index != i || res.Name != want {
			t.Fatalf("result %d = %+v, want name %s", i, res, want)
		}
	}
	want := []domain.Progress{{Completed: 1, Total: 3}, {Completed: 2, Total: 3}, {Completed: 3, Total: 3}}
	if len(progress.events) != len(want) {
		t.Fatalf("progress = %v, want %v", progress.events, want)
	}
	for i := range want {
		if progress.events[i] != want[i] {
			t.Fatalf("progress[%d] = %v, want %v", i, progress.events[i], want[i])
		}
	}
	if report.JobID == "" {
		t.Fatalf("JobID is empty")
	}
}

func TestRunComposesPromptOnce(t *testing.T) {
	adapter := &fakeAdapter{}
	orch := newOrchestrator(adapter, nil)
	if _, err := orch.Run(context.Background(), makeJob(4), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, instr := range adapter.instructions {
		if instr != adapter.instructions[0] {
			t.Fatalf("instruction changed between items")
		}
	}
	if !strings.Contains(adapter.instructions[0], "Japanese") {
		t.Fatalf("instruction = %q, want source hint", adapter.instructions[0])
	}
	if adapter.configs[0].Model != "fake-model" {
		t.Fatalf("Model = %q, want default", adapter.configs[0].Model)
	}
}

func TestRunAuthFailureIsIsolated(t *testing.T) {
	adapter := &fakeAdapter{replies: map[string]reply{
		"img00": {err: fmt.Errorf("%w: fake status 401: bad key secret", domain.ErrAuth)},
	}}
	orch := newOrchestrator(adapter, nil)

	report, err := orch.Run(context.Background(), makeJob(2), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != domain.JobCompleted {
		t.Fatalf("State = %q, want completed", report.State)
	}
	if report.Results[0].Status != domain.StatusError || report.Results[1].Status != domain.StatusSuccess {
		t.Fatalf("statuses = [%s %s], want [error success]", report.Results[0].Status, report.Results[1].Status)
	}
	if strings.Contains(report.Results[0].Detail, "secret") {
		t.Fatalf("credential leaked in detail: %q", report.Results[0].Detail)
	}
	if report.Results[0].Text != "" {
		t.Fatalf("error result carries text %q", report.Results[0].Text)
	}
}

func TestRunTruncatesToFirstTen(t *testing.T) {
	adapter := &fakeAdapter{}
	orch := newOrchestrator(adapter, nil)

	report, err := orch.Run(context.Background(), makeJob(12), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != domain.MaxBatchSize {
		t.Fatalf("len(Results) = %d, want %d", len(report.Results), domain.MaxBatchSize)
	}
	for i, res := range report.Results {
		if res.Name != fmt.Sprintf("img%02d.png", i) {
			t.Fatalf("result %d name = %q", i, res.Name)
		}
	}
	if adapter.callCount() != domain.MaxBatchSize {
		t.Fatalf("calls = %d, want %d", adapter.callCount(), domain.MaxBatchSize)
	}
	if report.Truncated != 2 {
		t.Fatalf("Truncated = %d, want 2", report.Truncated)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("silent policy produced warnings: %v", report.Warnings)
	}
}

func TestRunWarnPolicyAddsWarning(t *testing.T) {
	orch := newOrchestrator(&fakeAdapter{}, func(o *Options) { o.TruncationPolicy = infra.TruncateWarn })
	report, err := orch.Run(context.Background(), makeJob(11), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "first 10") {
		t.Fatalf("Warnings = %v", report.Warnings)
	}
}

func TestRunDoesNotMutateCallerItems(t *testing.T) {
	job := makeJob(12)
	orch := newOrchestrator(&fakeAdapter{}, nil)
	if _, err := orch.Run(context.Background(), job, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(job.Items) != 12 {
		t.Fatalf("caller items = %d, want 12", len(job.Items))
	}
}

func TestRunEmptyCredentialAborts(t *testing.T) {
	adapter := &fakeAdapter{}
	orch := newOrchestrator(adapter, nil)
	job := makeJob(3)
	job.Provider.Credential = "  "
	var progress progressLog

	report, err := orch.Run(context.Background(), job, progress.record)
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if report.State != domain.JobAborted {
		t.Fatalf("State = %q, want aborted", report.State)
	}
	if adapter.callCount() != 0 {
		t.Fatalf("calls = %d, want 0", adapter.callCount())
	}
	if len(report.Results) != 0 || len(progress.events) != 0 {
		t.Fatalf("aborted job produced results %v / progress %v", report.Results, progress.events)
	}
	if !errors.Is(report.Err, domain.ErrMissingCredential) {
		t.Fatalf("report.Err = %v", report.Err)
	}
}

func TestRunUnknownProviderAborts(t *testing.T) {
	adapter := &fakeAdapter{}
	orch := newOrchestrator(adapter, nil)
	job := makeJob(1)
	job.Provider.Provider = "nope"
	report, err := orch.Run(context.Background(), job, nil)
	if !errors.Is(err, domain.ErrUnknownProvider) || report.State != domain.JobAborted {
		t.Fatalf("err = %v state = %q", err, report.State)
	}
	if adapter.callCount() != 0 {
		t.Fatalf("calls = %d, want 0", adapter.callCount())
	}
}

func TestRunEmptyBatchAborts(t *testing.T) {
	orch := newOrchestrator(&fakeAdapter{}, nil)
	report, err := orch.Run(context.Background(), makeJob(0), nil)
	if !errors.Is(err, domain.ErrEmptyBatch) || report.State != domain.JobAborted {
		t.Fatalf("err = %v state = %q", err, report.State)
	}
}

func TestRunBlockedStopCodeWithText(t *testing.T) {
	adapter := &fakeAdapter{replies: map[string]reply{
		"img01": {raw: classify.Raw{Provider: "fake", StopCode: "blocked", Text: "partial output"}},
	}}
	report, err := newOrchestrator(adapter, nil).Run(context.Background(), makeJob(3), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Results[1].Status != domain.StatusSafetyBlocked {
		t.Fatalf("status = %q, want safety_blocked", report.Results[1].Status)
	}
	if report.Results[2].Status != domain.StatusSuccess {
		t.Fatalf("item after blocked = %q", report.Results[2].Status)
	}
	succeeded, blocked, failed := report.Counts()
	if succeeded != 2 || blocked != 1 || failed != 0 {
		t.Fatalf("Counts = %d/%d/%d", succeeded, blocked, failed)
	}
}

func TestRunEveryFailureKindKeepsLength(t *testing.T) {
	adapter := &fakeAdapter{replies: map[string]reply{
		"img00": {err: fmt.Errorf("%w: connection reset", domain.ErrTransport)},
		"img02": {err: fmt.Errorf("%w: bad json", domain.ErrProtocol)},
		"img03": {raw: classify.Raw{Provider: "fake", StopCode: "length"}},
	}}
	job := makeJob(5)
	job.Items[1].Data = nil
	report, err := newOrchestrator(adapter, nil).Run(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 5 {
		t.Fatalf("len(Results) = %d, want 5", len(report.Results))
	}
	wantStatus := []domain.Status{domain.StatusError, domain.StatusError, domain.StatusError, domain.StatusError, domain.StatusSuccess}
	for i, want := range wantStatus {
		if report.Results[i].Status != want {
			t.Fatalf("result %d status = %q, want %q", i, report.Results[i].Status, want)
		}
	}
	if !strings.Contains(report.Results[1].Detail, "decode") {
		t.Fatalf("decode detail = %q", report.Results[1].Detail)
	}
	if adapter.callCount() != 4 {
		t.Fatalf("calls = %d, want 4 (decode failure never reaches the adapter)", adapter.callCount())
	}
}

func TestRunCancellationBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter := &fakeAdapter{onCall: func(name string) {
		if name == "img01" {
			cancel()
		}
	}}
	report, err := newOrchestrator(adapter, nil).Run(ctx, makeJob(4), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != domain.JobCompleted {
		t.Fatalf("State = %q", report.State)
	}
	if len(report.Results) != 4 {
		t.Fatalf("len(Results) = %d, want 4", len(report.Results))
	}
	if report.Results[1].Status != domain.StatusSuccess {
		t.Fatalf("in-flight item status = %q, want success", report.Results[1].Status)
	}
	for _, res := range report.Results[2:] {
		if res.Status != domain.StatusError || res.Detail != canceledDetail {
			t.Fatalf("unstarted item = %+v", res)
		}
	}
	if adapter.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", adapter.callCount())
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("Warnings = %v", report.Warnings)
	}
}

func TestRunConcurrentPreservesOrderAndProgress(t *testing.T) {
	adapter := &fakeAdapter{onCall: func(name string) {
		// Earlier items finish later.
		if name < "img03" {
			time.Sleep(20 * time.Millisecond)
		}
	}}
	orch := newOrchestrator(adapter, func(o *Options) { o.Concurrency = 4 })
	var progress progressLog

	report, err := orch.Run(context.Background(), makeJob(6), progress.record)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, res := range report.Results {
		if res.Index != i || res.Name != fmt.Sprintf("img%02d.png", i) || res.Status != domain.StatusSuccess {
			t.Fatalf("result %d = %+v", i, res)
		}
	}
	if len(progress.events) != 6 {
		t.Fatalf("progress events = %d, want 6", len(progress.events))
	}
	for i, ev := range progress.events {
		if ev.Completed != i+1 || ev.Total != 6 {
			t.Fatalf("progress[%d] = %+v", i, ev)
		}
	}
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.JobRecord
}

func (m *memoryHistory) Save(_ context.Context, rec *domain.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *memoryHistory) GetByID(context.Context, string) (*domain.JobRecord, error) {
	return nil, domain.ErrNotFound
}

func (m *memoryHistory) ListRecent(context.Context, int) ([]domain.JobRecord, error) {
	return nil, nil
}

func TestRunPersistsHistory(t *testing.T) {
	history := &memoryHistory{}
	adapter := &fakeAdapter{replies: map[string]reply{
		"img01": {raw: classify.Raw{StopCode: "blocked"}},
	}}
	orch := newOrchestrator(adapter, func(o *Options) { o.History = history })

	report, err := orch.Run(context.Background(), makeJob(11), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(history.records) != 1 {
		t.Fatalf("records = %d, want 1", len(history.records))
	}
	rec := history.records[0]
	if rec.ID != report.JobID || rec.State != domain.JobCompleted {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Submitted != 11 || rec.Truncated != 1 || rec.Succeeded != 9 || rec.Blocked != 1 {
		t.Fatalf("counts = %+v", rec)
	}

	job := makeJob(1)
	job.Provider.Credential = ""
	if _, err := orch.Run(context.Background(), job, nil); err == nil {
		t.Fatalf("expected abort")
	}
	if len(history.records) != 2 || history.records[1].State != domain.JobAborted || history.records[1].ErrorMessage == "" {
		t.Fatalf("aborted record = %+v", history.records[len(history.records)-1])
	}
}

func TestAbortMessage(t *testing.T) {
	if got := AbortMessage(domain.ErrMissingCredential); !strings.Contains(got, "API key") {
		t.Fatalf("AbortMessage = %q", got)
	}
	if got := AbortMessage(nil); got != "" {
		t.Fatalf("AbortMessage(nil) = %q", got)
	}
}

func TestRunRecordsItemLifecycle(t *testing.T) {
	adapter := &fakeAdapter{replies: map[string]reply{
		"img01": {raw: classify.Raw{Provider: "fake", StopCode: "blocked"}},
		"img02": {err: fmt.Errorf("%w: status 503", domain.ErrTransport)},
	}}
	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	orch := newOrchestrator(adapter, func(o *Options) { o.Logger = &logger })

	job := makeJob(4)
	job.Items[3].Data = nil // fails to encode

	report, err := orch.Run(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []domain.ItemState{domain.ItemCompleted, domain.ItemFiltered, domain.ItemFailed, domain.ItemFailed}
	for i, res := range report.Results {
		if res.State != want[i] {
			t.Fatalf("result %d state = %q, want %q", i, res.State, want[i])
		}
	}

	transitions := map[int][]string{}
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry struct {
			Message string `json:"message"`
			Index   int    `json:"index"`
			To      string `json:"to"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log %q: %v", line, err)
		}
		if entry.Message == "batch: item state" {
			transitions[entry.Index] = append(transitions[entry.Index], entry.To)
		}
	}
	if got := strings.Join(transitions[0], ","); got != "encoded,submitted,completed" {
		t.Fatalf("item 0 transitions = %s", got)
	}
	if got := strings.Join(transitions[2], ","); got != "encoded,submitted,failed" {
		t.Fatalf("item 2 transitions = %s", got)
	}
	if got := strings.Join(transitions[3], ","); got != "failed" {
		t.Fatalf("item 3 transitions = %s", got)
	}
	if strings.Contains(logs.String(), "invalid item transition") {
		t.Fatalf("unexpected invalid transition in %s", logs.String())
	}
}

func TestCanceledItemsAreFailed(t *testing.T) {
	res := canceledResult(2, domain.ImageItem{Name: "x.png"}, "fake")
	if res.State != domain.ItemFailed || res.State != res.ItemState() {
		t.Fatalf("state = %q", res.State)
	}
}
