package tool

import (
	"sync"
)

// InvokeObservation captures one finished invocation.
type InvokeObservation struct {
	ToolID       string
	InvocationID string
	Origin       Origin
	DurationMS   int64
	Success      bool
	Reason       ErrorKind
}

// TransitionObservation captures one state-machine step of an invocation.
type TransitionObservation struct {
	ToolID       string
	InvocationID string
	From         State
	To           State
}

// Observer receives invocation observability events.
type Observer interface {
	ObserveInvoke(observation InvokeObservation)
	ObserveTransition(observation TransitionObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInvoke(InvokeObservation)         {}
func (noopObserver) ObserveTransition(TransitionObservation) {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide invocation observer. nil restores the no-op observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func currentObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return activeObserver
}

func emitInvokeObservation(observation InvokeObservation) {
	currentObserver().ObserveInvoke(observation)
}

func emitTransitionObservation(observation TransitionObservation) {
	currentObserver().ObserveTransition(observation)
}
