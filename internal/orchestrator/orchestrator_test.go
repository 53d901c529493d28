package orchestrator

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tis24dev/stackrestore/internal/archive"
	"github.com/tis24dev/stackrestore/internal/config"
	"github.com/tis24dev/stackrestore/internal/logging"
	"github.com/tis24dev/stackrestore/internal/metrics"
	"github.com/tis24dev/stackrestore/internal/notify"
	"github.com/tis24dev/stackrestore/internal/plan"
	"github.com/tis24dev/stackrestore/internal/selector"
	"github.com/tis24dev/stackrestore/internal/services"
	"github.com/tis24dev/stackrestore/internal/system"
	"github.com/tis24dev/stackrestore/internal/transfer"
	"github.com/tis24dev/stackrestore/internal/types"
)

const archiveName = "backup-2024-01-15.tar.gz"

type fixture struct {
	cfg      *config.Config
	root     string
	remote   *transfer.Fake
	units    *services.Fake
	prompter *stubPrompter
	deps     Deps
}

type stubPrompter struct {
	answer bool
	err    error
	calls  int
}

func (s *stubPrompter) ConfirmPlan(ctx context.Context, p *plan.Plan) (bool, error) {
	s.calls++
	return s.answer, s.err
}

func newLogger() *logging.Logger {
	l := logging.New(types.LogLevelDebug, false)
	l.SetOutput(io.Discard)
	return l
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: "etc/app/", Mode: 0o755, Typeflag: tar.TypeDir}); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"etc/app/app.conf", "etc/app/extra.conf"} {
		body, ok := files[name]
		if !ok {
			continue
		}
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "root")
	if err := os.MkdirAll(filepath.Join(root, "etc", "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "etc", "app", "app.conf"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.FromValues("test.env", map[string]string{
		"REMOTE_LOCATION":  "/remote",
		"TRANSFER_BACKEND": "local",
		"WORK_DIR":         filepath.Join(base, "work"),
		"SAFETY_DIR":       filepath.Join(base, "safety"),
		"RESTORE_ROOT":     root,
		"RESTORE_ITEMS":    "/etc/app",
		"AUX_SERVICE":      "bot",
		"EDGE_SERVICE":     "nginx",
		"COMPOSE_FILE":     "/srv/panel/compose.yml",
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	remote := transfer.NewFake("/remote")
	remote.Put(archiveName, tarGz(t, map[string]string{"etc/app/app.conf": "new", "etc/app/extra.conf": "extra"}))
	units := services.NewFake()
	logger := newLogger()
	prompter := &stubPrompter{answer: true}

	return &fixture{
		cfg:      cfg,
		root:     root,
		remote:   remote,
		units:    units,
		prompter: prompter,
		deps: Deps{
			Logger:   logger,
			Config:   cfg,
			Transfer: remote,
			Codec:    archive.NewTarGz(logger),
			Services: services.NewController(units, units, logger),
			Prompter: prompter,
			Time:     system.FixedClock{T: time.Date(2024, 1, 16, 3, 4, 5, 0, time.UTC)},
			Hostname: "host1",
			Version:  "test",
		},
	}
}

func (f *fixture) run(t *testing.T, ctx context.Context, opts Options) (*Report, error) {
	t.Helper()
	o, err := New(f.deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o.Run(ctx, opts)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

var (
	wantStops  = []string{"stop bot", "stop /srv/panel/compose.yml", "stop nginx"}
	wantStarts = []string{"start nginx", "start /srv/panel/compose.yml", "start bot"}
)

func TestRunRestoresInOrder(t *testing.T) {
	f := newFixture(t)
	rep, err := f.run(t, context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.FinalState != StateRestored {
		t.Fatalf("state = %s", rep.FinalState)
	}
	if got := readFile(t, filepath.Join(f.root, "etc", "app", "app.conf")); got != "new" {
		t.Fatalf("app.conf = %q", got)
	}
	if got := readFile(t, filepath.Join(f.root, "etc", "app", "extra.conf")); got != "extra" {
		t.Fatalf("extra.conf = %q", got)
	}

	want := append(append([]string(nil), wantStops...), wantStarts...)
	if got := f.units.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("service calls = %v, want %v", got, want)
	}

	wantStages := []string{StageSelect, StagePlan, StageConfirm, StagePreflight, StageTransfer,
		StageValidate, StageSnapshot, StageStop, StageApply, StageStart, StageHealth}
	if got := rep.StageNames(); !reflect.DeepEqual(got, wantStages) {
		t.Fatalf("stages = %v", got)
	}

	wantSnap := filepath.Join(f.cfg.SafetyDir, "pre-restore-20240116_030405.tar.gz")
	if rep.SnapshotPath != wantSnap {
		t.Fatalf("snapshot = %q, want %q", rep.SnapshotPath, wantSnap)
	}
	if _, err := os.Stat(wantSnap); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	if f.prompter.calls != 1 {
		t.Fatalf("prompter calls = %d", f.prompter.calls)
	}
	if len(rep.Health) != 3 {
		t.Fatalf("health = %+v", rep.Health)
	}
	for _, h := range rep.Health {
		if !h.Active || h.Err != nil {
			t.Fatalf("unhealthy member %+v", h)
		}
	}
	if rep.Entries != 3 {
		t.Fatalf("entries = %d", rep.Entries)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	rep, err := f.run(t, context.Background(), Options{DryRun: true, Output: &out})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ExitCodeFor(err) != types.ExitSuccess {
		t.Fatalf("exit = %v", ExitCodeFor(err))
	}
	if rep.FinalState != StatePlanned {
		t.Fatalf("state = %s", rep.FinalState)
	}
	if !strings.Contains(out.String(), archiveName) || !strings.Contains(out.String(), "/etc/app") {
		t.Fatalf("plan output:\n%s", out.String())
	}
	if len(f.remote.DownloadCalls) != 0 {
		t.Fatalf("downloads = %v", f.remote.DownloadCalls)
	}
	if calls := f.units.Calls(); len(calls) != 0 {
		t.Fatalf("service calls = %v", calls)
	}
	for _, dir := range []string{f.cfg.WorkDir, f.cfg.SafetyDir} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("%s was created (err=%v)", dir, err)
		}
	}
	if f.prompter.calls != 0 {
		t.Fatalf("dry run asked for confirmation")
	}
	if got := readFile(t, filepath.Join(f.root, "etc", "app", "app.conf")); got != "old" {
		t.Fatalf("app.conf changed to %q", got)
	}
}

func TestDryRunJSONOutput(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	if _, err := f.run(t, context.Background(), Options{DryRun: true, Output: &out, Format: plan.FormatJSON}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), `"archive": "`+archiveName+`"`) {
		t.Fatalf("json output:\n%s", out.String())
	}
}

func TestDeclinedConfirmationChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.prompter.answer = false
	rep, err := f.run(t, context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.FinalState != StateDeclined {
		t.Fatalf("state = %s", rep.FinalState)
	}
	if len(f.remote.DownloadCalls) != 0 || len(f.units.Calls()) != 0 {
		t.Fatalf("declined run acted: downloads=%v calls=%v", f.remote.DownloadCalls, f.units.Calls())
	}
}

func TestAssumeYesSkipsPrompter(t *testing.T) {
	f := newFixture(t)
	f.prompter.answer = false
	rep, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.prompter.calls != 0 || rep.FinalState != StateRestored {
		t.Fatalf("calls=%d state=%s", f.prompter.calls, rep.FinalState)
	}
}

func TestMissingPrompterRequiresYes(t *testing.T) {
	f := newFixture(t)
	f.deps.Prompter = nil
	_, err := f.run(t, context.Background(), Options{})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v", err)
	}
	if len(f.remote.DownloadCalls) != 0 {
		t.Fatalf("downloaded without confirmation")
	}
}

func TestExplicitDateSkipsListing(t *testing.T) {
	f := newFixture(t)
	rep, err := f.run(t, context.Background(), Options{Request: selector.Request{Date: "2024-01-15"}, DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.remote.ListCalls != 0 {
		t.Fatalf("listing called %d times", f.remote.ListCalls)
	}
	if rep.Archive != archiveName {
		t.Fatalf("archive = %s", rep.Archive)
	}
}

func TestSelectionErrors(t *testing.T) {
	cases := []struct {
		name string
		req  selector.Request
		prep func(*fixture)
		want types.ExitCode
	}{
		{name: "not found", prep: func(f *fixture) { f.remote = transfer.NewFake("/remote"); f.deps.Transfer = f.remote }, want: types.ExitSelectionError},
		{name: "conflicting", req: selector.Request{Name: archiveName, Date: "2024-01-15"}, want: types.ExitConfigError},
		{name: "bad date", req: selector.Request{Date: "15/01/2024"}, want: types.ExitConfigError},
		{name: "listing failure", prep: func(f *fixture) {
			f.remote.ListErr = &transfer.Error{Backend: "fake", Op: "list", Kind: transfer.KindAuth, Err: errors.New("denied")}
		}, want: types.ExitTransferError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.prep != nil {
				tc.prep(f)
			}
			_, err := f.run(t, context.Background(), Options{Request: tc.req})
			if got := ExitCodeFor(err); got != tc.want {
				t.Fatalf("exit = %v (%v), want %v", got, err, tc.want)
			}
			if len(f.units.Calls()) != 0 {
				t.Fatalf("services touched")
			}
		})
	}
}

func TestTransferFailureIsFatalBeforeServices(t *testing.T) {
	f := newFixture(t)
	f.remote.DownloadErr = &transfer.Error{Backend: "fake", Op: "download", Kind: transfer.KindNetwork, Err: errors.New("reset")}
	rep, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if got := ExitCodeFor(err); got != types.ExitTransferError {
		t.Fatalf("exit = %v (%v)", got, err)
	}
	if rep.FinalState != StateAborted || len(f.units.Calls()) != 0 {
		t.Fatalf("state=%s calls=%v", rep.FinalState, f.units.Calls())
	}
}

func TestExplicitNameMissingOnRemote(t *testing.T) {
	f := newFixture(t)
	rep, err := f.run(t, context.Background(), Options{
		AssumeYes: true,
		Request:   selector.Request{Name: "backup-1999-01-01.tar.gz"},
	})
	if got := ExitCodeFor(err); got != types.ExitTransferError {
		t.Fatalf("exit = %v (%v)", got, err)
	}
	if !strings.Contains(err.Error(), "not on the remote") || !transfer.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
	if rep.FinalState != StateAborted || len(f.units.Calls()) != 0 {
		t.Fatalf("state=%s calls=%v", rep.FinalState, f.units.Calls())
	}
}

func TestValidationFailureTouchesNoService(t *testing.T) {
	f := newFixture(t)
	f.remote.Put(archiveName, []byte("definitely not gzip"))
	_, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if got := ExitCodeFor(err); got != types.ExitValidationError {
		t.Fatalf("exit = %v (%v)", got, err)
	}
	if len(f.units.Calls()) != 0 {
		t.Fatalf("services touched: %v", f.units.Calls())
	}
	entries, _ := os.ReadDir(f.cfg.SafetyDir)
	if len(entries) != 0 {
		t.Fatalf("snapshot written before validation passed")
	}
}

func TestApplyFailureLeavesServicesStopped(t *testing.T) {
	f := newFixture(t)
	codec := archive.NewFake()
	local := filepath.Join(f.cfg.WorkDir, archiveName)
	codec.Archives[local] = &archive.Listing{Archive: local, Entries: []archive.Entry{{Name: "etc/app/app.conf", Type: tar.TypeReg}}}
	codec.ExtractErr = errors.New("disk full")
	f.deps.Codec = codec

	rep, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if got := ExitCodeFor(err); got != types.ExitApplyError {
		t.Fatalf("exit = %v (%v)", got, err)
	}
	if CategoryOf(err) != CategoryApply {
		t.Fatalf("category = %s", CategoryOf(err))
	}
	if rep.FinalState != StateStoppedUnrestored {
		t.Fatalf("state = %s", rep.FinalState)
	}
	if got := f.units.Calls(); !reflect.DeepEqual(got, wantStops) {
		t.Fatalf("calls = %v, want only stops", got)
	}
	if rep.SnapshotPath == "" {
		t.Fatalf("snapshot path not reported")
	}
	if !strings.Contains(Diagnostic(err), "restore failed [apply]") {
		t.Fatalf("diagnostic = %q", Diagnostic(err))
	}
}

func TestBestEffortStopFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.units.StopErr["bot"] = errors.New("unit busy")
	rep, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.FinalState != StateRestoredWithWarnings {
		t.Fatalf("state = %s", rep.FinalState)
	}
	if rep.Failures() != 1 {
		t.Fatalf("failures = %d (%+v)", rep.Failures(), rep.Outcomes)
	}
	calls := f.units.Calls()
	if calls[len(calls)-1] != "start bot" {
		t.Fatalf("start stage did not complete: %v", calls)
	}
}

func TestMissingComposeDescriptorIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.units.Missing["/srv/panel/compose.yml"] = true
	rep, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"stop bot", "stop nginx", "start nginx", "start bot"}
	if got := f.units.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v", got)
	}
	if rep.FinalState != StateRestored || rep.Failures() != 0 {
		t.Fatalf("state=%s failures=%d", rep.FinalState, rep.Failures())
	}
}

func TestNoExistingItemsSkipsSnapshot(t *testing.T) {
	f := newFixture(t)
	if err := os.RemoveAll(filepath.Join(f.root, "etc")); err != nil {
		t.Fatal(err)
	}
	rep, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.SnapshotPath != "" {
		t.Fatalf("snapshot = %q", rep.SnapshotPath)
	}
	entries, _ := os.ReadDir(f.cfg.SafetyDir)
	if len(entries) != 0 {
		t.Fatalf("safety dir not empty: %v", entries)
	}
}

type cancellingProvider struct {
	transfer.Provider
	cancel context.CancelFunc
}

func (c cancellingProvider) Download(ctx context.Context, remotePath, localPath string) error {
	err := c.Provider.Download(ctx, remotePath, localPath)
	c.cancel()
	return err
}

func TestCancellationBeforeStopIsInterrupted(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.deps.Transfer = cancellingProvider{Provider: f.remote, cancel: cancel}

	rep, err := f.run(t, ctx, Options{AssumeYes: true})
	if got := ExitCodeFor(err); got != types.ExitInterrupted {
		t.Fatalf("exit = %v (%v)", got, err)
	}
	if len(f.units.Calls()) != 0 {
		t.Fatalf("services touched after cancellation: %v", f.units.Calls())
	}
	if rep.FinalState != StateAborted {
		t.Fatalf("state = %s", rep.FinalState)
	}
}

type cancellingServices struct {
	*services.Fake
	cancel context.CancelFunc
}

func (c cancellingServices) Stop(ctx context.Context, name string) error {
	c.cancel()
	return c.Fake.Stop(ctx, name)
}

func TestCancellationAfterStopCompletes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := cancellingServices{Fake: f.units, cancel: cancel}
	f.deps.Services = services.NewController(svc, svc, f.deps.Logger)

	rep, err := f.run(t, ctx, Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.FinalState != StateRestored {
		t.Fatalf("state = %s", rep.FinalState)
	}
	want := append(append([]string(nil), wantStops...), wantStarts...)
	if got := f.units.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v", got)
	}
}

type captureExporter struct{ got *metrics.RestoreMetrics }

func (c *captureExporter) Export(m *metrics.RestoreMetrics) error {
	c.got = m
	return nil
}

type captureNotifier struct{ got *notify.NotificationData }

func (c *captureNotifier) Name() string    { return "capture" }
func (c *captureNotifier) IsEnabled() bool { return true }
func (c *captureNotifier) Send(ctx context.Context, data *notify.NotificationData) (*notify.NotificationResult, error) {
	c.got = data
	return &notify.NotificationResult{Success: true, Method: "capture"}, nil
}

func TestRunPublishesMetricsAndNotification(t *testing.T) {
	f := newFixture(t)
	exp := &captureExporter{}
	nt := &captureNotifier{}
	f.deps.Metrics = exp
	f.deps.Notifier = nt

	rep, err := f.run(t, context.Background(), Options{AssumeYes: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exp.got == nil || exp.got.FinalState != string(StateRestored) || exp.got.RunID != rep.RunID || !exp.got.SnapshotTaken {
		t.Fatalf("metrics = %+v", exp.got)
	}
	if nt.got == nil || nt.got.Status != notify.StatusSuccess || nt.got.Archive != archiveName {
		t.Fatalf("notification = %+v", nt.got)
	}
	if len(nt.got.Actions) != 6 {
		t.Fatalf("actions = %+v", nt.got.Actions)
	}
}

func TestDryRunPublishesNothing(t *testing.T) {
	f := newFixture(t)
	exp := &captureExporter{}
	nt := &captureNotifier{}
	f.deps.Metrics = exp
	f.deps.Notifier = nt
	if _, err := f.run(t, context.Background(), Options{DryRun: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exp.got != nil || nt.got != nil {
		t.Fatalf("dry run published results")
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.remote.Put("backup-2023-12-31.tar.gz", []byte("x"))
	f.remote.Put("backup-2024-01-02.tar.gz", []byte("x"))
	f.remote.Put("notes.txt", []byte("x"))
	o, err := New(f.deps)
	if err != nil {
		t.Fatal(err)
	}
	objects, err := o.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, obj := range objects {
		names = append(names, obj.Name)
	}
	want := []string{archiveName, "backup-2024-01-02.tar.gz", "backup-2023-12-31.tar.gz"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v", names)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error for empty deps")
	}
}
