package events

import (
	"testing"

	"github.com/paywall-labs/paywall-go/internal/models"
)

func TestSubscribeAndEmit(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(PaymentSuccess, func(ev Event) {
		got = append(got, ev)
	})

	bus.Emit(Event{Name: PaymentSuccess, Provider: models.ProviderStripe})

	if len(got) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(got))
	}
	if got[0].Provider != models.ProviderStripe {
		t.Errorf("Expected stripe provider, got %s", got[0].Provider)
	}
}

func TestFanOutOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	for i := 1; i <= 5; i++ {
		i := i
		bus.Subscribe(ProductChanged, func(Event) {
			order = append(order, i)
		})
	}

	bus.Emit(Event{Name: ProductChanged})

	for i, v := range order {
		if v != i+1 {
			t.Fatalf("Expected registration order delivery, got %v", order)
		}
	}
}

func TestDisposerRemovesListener(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsubscribe := bus.Subscribe(PaymentFailure, func(Event) { calls++ })

	bus.Emit(Event{Name: PaymentFailure})
	unsubscribe()
	bus.Emit(Event{Name: PaymentFailure})

	if calls != 1 {
		t.Errorf("Expected 1 call after dispose, got %d", calls)
	}

	// Double dispose is a no-op
	unsubscribe()
}

func TestDisposerOnlyRemovesOwnListener(t *testing.T) {
	bus := NewBus()

	var a, b int
	unsubA := bus.Subscribe(Ready, func(Event) { a++ })
	bus.Subscribe(Ready, func(Event) { b++ })

	unsubA()
	bus.Emit(Event{Name: Ready})

	if a != 0 || b != 1 {
		t.Errorf("Expected only listener B to fire, got a=%d b=%d", a, b)
	}
}

func TestEmitUnknownNameIsNoOp(t *testing.T) {
	bus := NewBus()
	bus.Emit(Event{Name: "nobody_listens"})
}
