package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"filter-explorer/internal/codec"
	"filter-explorer/internal/models"

	"github.com/stretchr/testify/require"
)

// fakeCodec treats any non-empty payload not starting with "bad" as an image.
type fakeCodec struct{}

func (fakeCodec) Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func (fakeCodec) Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &models.FilterError{Kind: models.FailureDecode, Err: err}
	}
	return data, nil
}

func (fakeCodec) Validate(data []byte) (codec.Info, error) {
	if len(data) == 0 || strings.HasPrefix(string(data), "bad") {
		return codec.Info{}, &models.FilterError{Kind: models.FailureDecode, Err: errors.New("not an image")}
	}
	return codec.Info{Width: 1, Height: 1, Channels: 3}, nil
}

type sentRequest struct {
	image  []byte
	key    models.FilterKey
	kernel *models.KernelSize
}

// fakeSender records requests and answers with respond. When gate is set,
// each Send blocks until a value is received from it.
type fakeSender struct {
	mu       sync.Mutex
	requests []sentRequest
	respond  func(image []byte, key models.FilterKey, kernel *models.KernelSize) (string, error)
	gate     chan struct{}
	started  chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		respond: func(image []byte, key models.FilterKey, kernel *models.KernelSize) (string, error) {
			out := fmt.Sprintf("%s|%s", image, key)
			if kernel != nil {
				out = fmt.Sprintf("%s:%d", out, *kernel)
			}
			return base64.StdEncoding.EncodeToString([]byte(out)), nil
		},
	}
}

func (f *fakeSender) Send(ctx context.Context, encodedImage string, key models.FilterKey, kernel *models.KernelSize) (string, error) {
	image, err := base64.StdEncoding.DecodeString(encodedImage)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.requests = append(f.requests, sentRequest{image: image, key: key, kernel: kernel})
	gate, started, respond := f.gate, f.started, f.respond
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return respond(image, key, kernel)
}

func (f *fakeSender) calls() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.requests...)
}

func newMachine(sender *fakeSender) *Machine {
	n := 0
	return New(sender, fakeCodec{}, nil, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}))
}

func kernel(k int) *models.KernelSize {
	ks := models.KernelSize(k)
	return &ks
}

func TestLoadImage(t *testing.T) {
	m := newMachine(newFakeSender())
	require.Equal(t, models.StateEmpty, m.Snapshot().State)

	data := []byte("I0")
	snap, err := m.LoadImage(data)
	require.NoError(t, err)
	require.Equal(t, models.StateReady, snap.State)
	require.Equal(t, "session-1", snap.SessionID)
	require.Equal(t, models.Image("I0"), snap.Original)
	require.Equal(t, models.Image("I0"), snap.Current)
	require.Empty(t, snap.History)
	require.False(t, snap.InFlight)
	require.True(t, snap.CanApply)
	require.False(t, snap.CanReset)
	require.True(t, snap.CanExport)
}

func TestLoadImageDecodeFailureKeepsPriorSession(t *testing.T) {
	m := newMachine(newFakeSender())
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)
	_, err = m.ApplyFilter(context.Background(), models.FilterCanny, nil)
	require.NoError(t, err)
	before := m.Snapshot()

	_, err = m.LoadImage([]byte("bad bytes"))
	require.True(t, models.IsFailure(err, models.FailureDecode))
	require.Equal(t, before, m.Snapshot())
}

func TestApplyFilterPreconditions(t *testing.T) {
	sender := newFakeSender()
	m := newMachine(sender)

	_, err := m.ApplyFilter(context.Background(), models.FilterCanny, nil)
	require.ErrorIs(t, err, models.ErrNoImage)
	require.True(t, models.IsValidation(err))

	_, err = m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	_, err = m.ApplyFilter(context.Background(), models.FilterGaussianBlur, nil)
	require.ErrorIs(t, err, models.ErrKernelRequired)

	_, err = m.ApplyFilter(context.Background(), models.FilterMeanBlur, kernel(1))
	require.ErrorIs(t, err, models.ErrInvalidKernel)

	_, err = m.ApplyFilter(context.Background(), models.FilterKey("laplacian"), nil)
	require.ErrorIs(t, err, models.ErrUnknownFilter)

	require.Empty(t, sender.calls(), "validation failures must not reach the service")
	require.Equal(t, 4, m.Stats().Rejected)
	require.Equal(t, models.StateReady, m.Snapshot().State)
}

func TestApplyFilterSendsKernelOnlyWhenRequired(t *testing.T) {
	sender := newFakeSender()
	m := newMachine(sender)
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	_, err = m.ApplyFilter(context.Background(), models.FilterSobel, kernel(7))
	require.NoError(t, err)
	_, err = m.ApplyFilter(context.Background(), models.FilterMedianBlur, kernel(7))
	require.NoError(t, err)

	calls := sender.calls()
	require.Len(t, calls, 2)
	require.Nil(t, calls[0].kernel)
	require.NotNil(t, calls[1].kernel)
	require.Equal(t, models.KernelSize(7), *calls[1].kernel)
}

func TestKernelCapturedAtIssueTime(t *testing.T) {
	sender := newFakeSender()
	sender.gate = make(chan struct{})
	sender.started = make(chan struct{}, 1)
	m := newMachine(sender)
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	k := models.KernelSize(5)
	done := make(chan error, 1)
	go func() {
		_, err := m.ApplyFilter(context.Background(), models.FilterGaussianBlur, &k)
		done <- err
	}()
	<-sender.started
	k = 9
	sender.gate <- struct{}{}
	require.NoError(t, <-done)

	require.Equal(t, models.KernelSize(5), *sender.calls()[0].kernel)
	require.Equal(t, models.Image("I0|gaussian_blur:5"), m.Snapshot().Current)
}

func TestHistoryCountsSuccessfulApplicationsInOrder(t *testing.T) {
	m := newMachine(newFakeSender())
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	sequence := []models.FilterKey{models.FilterCanny, models.FilterMeanBlur, models.FilterCanny, models.FilterSobel}
	var want models.History
	for _, key := range sequence {
		spec, _ := models.LookupFilter(key)
		_, err := m.ApplyFilter(context.Background(), key, kernel(3))
		require.NoError(t, err)
		want = append(want, spec.Label)
	}

	snap := m.Snapshot()
	require.Equal(t, want, snap.History)
	require.Len(t, snap.History, m.Stats().Applied)
}

func TestRepeatedFilterIsNotDeduplicated(t *testing.T) {
	m := newMachine(newFakeSender())
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	_, err = m.ApplyFilter(context.Background(), models.FilterGaussianBlur, kernel(3))
	require.NoError(t, err)
	snap, err := m.ApplyFilter(context.Background(), models.FilterGaussianBlur, kernel(7))
	require.NoError(t, err)

	require.Equal(t, models.History{"Blur Gaussiano", "Blur Gaussiano"}, snap.History)
	require.Equal(t, models.Image("I0|gaussian_blur:3|gaussian_blur:7"), snap.Current)
}

func TestFailedApplyLeavesStateUnchanged(t *testing.T) {
	failures := []error{
		&models.FilterError{Kind: models.FailureTransport, Err: errors.New("connection refused")},
		&models.FilterError{Kind: models.FailureService, Status: 400, Message: "Falha ao decodificar imagem"},
		&models.FilterError{Kind: models.FailureMissingResult, Status: 200},
	}

	for _, failure := range failures {
		fe := failure.(*models.FilterError)
		t.Run(fe.Kind.String(), func(t *testing.T) {
			sender := newFakeSender()
			m := newMachine(sender)
			_, err := m.LoadImage([]byte("I0"))
			require.NoError(t, err)
			_, err = m.ApplyFilter(context.Background(), models.FilterCanny, nil)
			require.NoError(t, err)
			before := m.Snapshot()

			sender.respond = func([]byte, models.FilterKey, *models.KernelSize) (string, error) {
				return "", failure
			}
			snap, err := m.ApplyFilter(context.Background(), models.FilterSobel, nil)
			require.ErrorIs(t, err, failure)
			require.Equal(t, before, snap)
			require.Equal(t, before, m.Snapshot())
			require.Equal(t, 1, m.Stats().Failed)
		})
	}
}

func TestUndecodableResultIsDecodeFailure(t *testing.T) {
	sender := newFakeSender()
	m := newMachine(sender)
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)
	before := m.Snapshot()

	sender.respond = func([]byte, models.FilterKey, *models.KernelSize) (string, error) {
		return base64.StdEncoding.EncodeToString([]byte("bad result")), nil
	}
	_, err = m.ApplyFilter(context.Background(), models.FilterCanny, nil)
	require.True(t, models.IsFailure(err, models.FailureDecode))

	var fe *models.FilterError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, models.FilterCanny, fe.Filter)
	require.Equal(t, before, m.Snapshot())
}

func TestChainingSendsPreviousResult(t *testing.T) {
	sender := newFakeSender()
	m := newMachine(sender)
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	a, err := m.ApplyFilter(context.Background(), models.FilterMeanBlur, kernel(3))
	require.NoError(t, err)
	b, err := m.ApplyFilter(context.Background(), models.FilterCanny, nil)
	require.NoError(t, err)

	calls := sender.calls()
	require.Equal(t, []byte("I0"), calls[0].image)
	require.Equal(t, []byte(a.Current), calls[1].image)
	require.NotEqual(t, []byte(b.Original), calls[1].image)
	require.Equal(t, models.History{"Blur (Média)", "Detecção de Bordas (Canny)"}, b.History)
}

func TestBusyRejectsApplyWithoutContactingService(t *testing.T) {
	sender := newFakeSender()
	sender.gate = make(chan struct{})
	sender.started = make(chan struct{}, 1)
	m := newMachine(sender)
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, m.ApplyFilterAsync(context.Background(), models.FilterCanny, nil, func(_ models.Snapshot, err error) {
		done <- err
	}))
	<-sender.started

	snap := m.Snapshot()
	require.True(t, snap.InFlight)
	require.True(t, m.InFlight())
	require.Equal(t, models.StateBusy, snap.State)
	require.False(t, snap.CanApply)
	require.False(t, snap.CanReset)
	require.Equal(t, "Detecção de Bordas (Canny)", snap.PendingFilter)

	_, err = m.ApplyFilter(context.Background(), models.FilterSobel, nil)
	require.ErrorIs(t, err, models.ErrBusy)
	err = m.ApplyFilterAsync(context.Background(), models.FilterSobel, nil, nil)
	require.ErrorIs(t, err, models.ErrBusy)
	_, err = m.Reset()
	require.ErrorIs(t, err, models.ErrBusy)

	require.Len(t, sender.calls(), 1)

	sender.gate <- struct{}{}
	require.NoError(t, <-done)
	require.Equal(t, models.StateReady, m.Snapshot().State)
	require.False(t, m.InFlight())
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	outcomes := map[string]func([]byte, models.FilterKey, *models.KernelSize) (string, error){
		"success": newFakeSender().respond,
		"failure": func([]byte, models.FilterKey, *models.KernelSize) (string, error) {
			return "", &models.FilterError{Kind: models.FailureTransport, Err: errors.New("timeout")}
		},
	}

	for name, respond := range outcomes {
		t.Run(name, func(t *testing.T) {
			sender := newFakeSender()
			sender.respond = respond
			sender.gate = make(chan struct{})
			sender.started = make(chan struct{}, 1)
			m := newMachine(sender)
			_, err := m.LoadImage([]byte("I0"))
			require.NoError(t, err)

			done := make(chan error, 1)
			require.NoError(t, m.ApplyFilterAsync(context.Background(), models.FilterCanny, nil, func(_ models.Snapshot, err error) {
				done <- err
			}))
			<-sender.started

			fresh, err := m.LoadImage([]byte("I1"))
			require.NoError(t, err)
			require.False(t, fresh.InFlight)
			require.True(t, fresh.CanApply)

			sender.gate <- struct{}{}
			require.ErrorIs(t, <-done, ErrStale)

			require.Equal(t, fresh, m.Snapshot())
			require.Equal(t, 1, m.Stats().Stale)
		})
	}
}

func TestStaleCompletionDoesNotDisturbNewerRequest(t *testing.T) {
	sender := newFakeSender()
	sender.started = make(chan struct{}, 2)
	release := map[models.FilterKey]chan struct{}{
		models.FilterCanny: make(chan struct{}),
		models.FilterSobel: make(chan struct{}),
	}
	respond := sender.respond
	sender.respond = func(image []byte, key models.FilterKey, k *models.KernelSize) (string, error) {
		<-release[key]
		return respond(image, key, k)
	}
	m := newMachine(sender)
	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	stale := make(chan error, 1)
	require.NoError(t, m.ApplyFilterAsync(context.Background(), models.FilterCanny, nil, func(_ models.Snapshot, err error) {
		stale <- err
	}))
	<-sender.started

	_, err = m.LoadImage([]byte("I1"))
	require.NoError(t, err)

	fresh := make(chan error, 1)
	require.NoError(t, m.ApplyFilterAsync(context.Background(), models.FilterSobel, nil, func(_ models.Snapshot, err error) {
		fresh <- err
	}))
	<-sender.started

	close(release[models.FilterCanny])
	require.ErrorIs(t, <-stale, ErrStale)

	busy := m.Snapshot()
	require.Equal(t, models.StateBusy, busy.State)
	require.Equal(t, "Detecção de Bordas (Sobel)", busy.PendingFilter)
	require.Equal(t, models.Image("I1"), busy.Current)

	close(release[models.FilterSobel])
	require.NoError(t, <-fresh)

	snap := m.Snapshot()
	require.Equal(t, models.History{"Detecção de Bordas (Sobel)"}, snap.History)
	require.Equal(t, models.Image("I1|sobel"), snap.Current)
}

func TestResetIsIdempotent(t *testing.T) {
	m := newMachine(newFakeSender())
	_, err := m.Reset()
	require.ErrorIs(t, err, models.ErrNoImage)

	_, err = m.LoadImage([]byte("I0"))
	require.NoError(t, err)
	_, err = m.ApplyFilter(context.Background(), models.FilterCanny, nil)
	require.NoError(t, err)

	once, err := m.Reset()
	require.NoError(t, err)
	twice, err := m.Reset()
	require.NoError(t, err)

	require.Equal(t, once, twice)
	require.True(t, twice.Current.Equal(twice.Original))
	require.Empty(t, twice.History)
	require.False(t, twice.CanReset)
}

func TestLoadThenResetRoundTrip(t *testing.T) {
	m := newMachine(newFakeSender())
	data := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}

	_, err := m.LoadImage(data)
	require.NoError(t, err)
	snap, err := m.Reset()
	require.NoError(t, err)

	require.Equal(t, models.Image(data), snap.Current)
	require.Equal(t, snap.Original, snap.Current)
}

func TestExport(t *testing.T) {
	m := newMachine(newFakeSender())
	_, err := m.Export()
	require.ErrorIs(t, err, models.ErrNothingToExport)

	_, err = m.LoadImage([]byte("I0"))
	require.NoError(t, err)
	out, err := m.Export()
	require.NoError(t, err)
	require.Equal(t, []byte("I0"), out)

	_, err = m.ApplyFilter(context.Background(), models.FilterSobel, nil)
	require.NoError(t, err)
	before := m.Snapshot()

	out, err = m.Export()
	require.NoError(t, err)
	require.Equal(t, []byte("I0|sobel"), out)

	out[0] = 'X'
	require.Equal(t, before, m.Snapshot(), "export must not expose internal state")
}

func TestListenersReceiveTransitionsAndFailures(t *testing.T) {
	sender := newFakeSender()
	m := newMachine(sender)

	var mu sync.Mutex
	var states []models.State
	var errs []error
	unsubscribe := m.Subscribe(func(snap models.Snapshot, err error) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, snap.State)
		errs = append(errs, err)
	})

	_, _ = m.ApplyFilter(context.Background(), models.FilterCanny, nil)
	_, _ = m.LoadImage([]byte("I0"))
	_, _ = m.ApplyFilter(context.Background(), models.FilterCanny, nil)

	mu.Lock()
	require.Equal(t, []models.State{models.StateEmpty, models.StateReady, models.StateBusy, models.StateReady}, states)
	require.ErrorIs(t, errs[0], models.ErrNoImage)
	require.NoError(t, errs[3])
	mu.Unlock()

	unsubscribe()
	_, _ = m.Reset()
	mu.Lock()
	require.Len(t, states, 4)
	mu.Unlock()
}

func TestScenarioGaussianThenCannyThenReset(t *testing.T) {
	sender := newFakeSender()
	m := newMachine(sender)

	_, err := m.LoadImage([]byte("I0"))
	require.NoError(t, err)

	f1, err := m.ApplyFilter(context.Background(), models.FilterGaussianBlur, kernel(5))
	require.NoError(t, err)
	require.Equal(t, models.History{"Blur Gaussiano"}, f1.History)
	require.Equal(t, models.Image("I0|gaussian_blur:5"), f1.Current)

	f2, err := m.ApplyFilter(context.Background(), models.FilterCanny, nil)
	require.NoError(t, err)
	require.Equal(t, models.History{"Blur Gaussiano", "Detecção de Bordas (Canny)"}, f2.History)
	require.Equal(t, []byte(f1.Current), sender.calls()[1].image)
	require.Equal(t, "Blur Gaussiano → Detecção de Bordas (Canny)", f2.HistoryText())

	reset, err := m.Reset()
	require.NoError(t, err)
	require.Equal(t, models.Image("I0"), reset.Current)
	require.Empty(t, reset.History)
	require.Equal(t, "Nenhum filtro aplicado.", reset.HistoryText())
}
