package eventloop

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nimbuschain/nimbus-go/consensus/bft/helper"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// recordingHandler records every call in arrival order and asserts that no
// two calls overlap.
type recordingHandler struct {
	mu        sync.Mutex
	busy      bool
	events    []string
	timeoutCh chan time.Time
	failOn    string
	processed chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		timeoutCh: make(chan time.Time, 1),
		processed: make(chan string, 64),
	}
}

func (h *recordingHandler) record(event string) error {
	h.mu.Lock()
	if h.busy {
		panic("event handler called concurrently")
	}
	h.busy = true
	h.events = append(h.events, event)
	h.mu.Unlock()

	time.Sleep(time.Millisecond)

	h.mu.Lock()
	h.busy = false
	h.mu.Unlock()

	h.processed <- event
	if event == h.failOn {
		return fmt.Errorf("injected failure on %s", event)
	}
	return nil
}

func (h *recordingHandler) Start(ctx context.Context) error { return nil }

func (h *recordingHandler) OnReceiveProposal(proposal *model.Proposal) error {
	return h.record(fmt.Sprintf("proposal-%d", proposal.Block.Round))
}

func (h *recordingHandler) OnQCConstructed(qc *nimbus.QuorumCertificate) error {
	return h.record(fmt.Sprintf("qc-%d", qc.Round))
}

func (h *recordingHandler) OnTCConstructed(tc *nimbus.TimeoutCertificate) error {
	return h.record(fmt.Sprintf("tc-%d", tc.Round))
}

func (h *recordingHandler) OnLocalTimeout() error {
	return h.record("timeout")
}

func (h *recordingHandler) OnPartialTimeoutCertificate(round uint64) error {
	return h.record(fmt.Sprintf("partial-tc-%d", round))
}

func (h *recordingHandler) OnReceiveSyncInfo(syncInfo *model.SyncInfo) error {
	return h.record("sync-info")
}

func (h *recordingHandler) TimeoutChannel() <-chan time.Time {
	return h.timeoutCh
}

func (h *recordingHandler) await(t *testing.T, event string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case processed := <-h.processed:
			if processed == event {
				return
			}
		case <-deadline:
			t.Fatalf("event %s was not processed", event)
		}
	}
}

func withLoop(t *testing.T, fn func(loop *EventLoop, handler *recordingHandler, runErr <-chan error, cancel context.CancelFunc)) {
	handler := newRecordingHandler()
	loop := New(zerolog.Nop(), handler)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- loop.Run(ctx)
	}()

	fn(loop, handler, runErr, cancel)

	cancel()
	select {
	case <-runErr:
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not stop")
	}
}

func TestEventsAreSerializedIntoHandler(t *testing.T) {
	withLoop(t, func(loop *EventLoop, handler *recordingHandler, runErr <-chan error, cancel context.CancelFunc) {
		loop.SubmitProposal(helper.MakeProposal(helper.WithProposalBlock(helper.MakeBlock(helper.WithBlockRound(7)))))
		loop.OnQCConstructed(helper.MakeQC(helper.WithQCRound(7)))
		loop.OnTCConstructed(helper.MakeTC(helper.WithTCRound(8)))
		loop.OnPartialTimeoutCertificate(9)
		loop.SubmitSyncInfo(&model.SyncInfo{HighestQC: helper.MakeQC(helper.WithQCRound(10))})

		// events on distinct channels may interleave, but all must arrive
		got := make(map[string]struct{})
		for len(got) < 5 {
			select {
			case event := <-handler.processed:
				got[event] = struct{}{}
			case <-time.After(5 * time.Second):
				t.Fatalf("only %d of 5 events processed", len(got))
			}
		}
		require.Contains(t, got, "proposal-7")
		require.Contains(t, got, "qc-7")
		require.Contains(t, got, "tc-8")
		require.Contains(t, got, "partial-tc-9")
		require.Contains(t, got, "sync-info")
	})
}

func TestTimeoutChannelTriggersLocalTimeout(t *testing.T) {
	withLoop(t, func(loop *EventLoop, handler *recordingHandler, runErr <-chan error, cancel context.CancelFunc) {
		handler.timeoutCh <- time.Now()
		handler.await(t, "timeout")
	})
}

func TestHandlerErrorStopsLoop(t *testing.T) {
	handler := newRecordingHandler()
	handler.failOn = "qc-42"
	loop := New(zerolog.Nop(), handler)

	runErr := make(chan error, 1)
	go func() {
		runErr <- loop.Run(context.Background())
	}()

	loop.OnQCConstructed(helper.MakeQC(helper.WithQCRound(42)))

	select {
	case err := <-runErr:
		require.ErrorContains(t, err, "injected failure")
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not fail-stop on handler error")
	}

	// submissions after shutdown must not block
	done := make(chan struct{})
	go func() {
		loop.SubmitProposal(helper.MakeProposal())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submission blocked after shutdown")
	}
}

func TestCancelStopsLoopCleanly(t *testing.T) {
	handler := newRecordingHandler()
	loop := New(zerolog.Nop(), handler)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- loop.Run(ctx)
	}()

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not stop on context cancellation")
	}
}
