package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscribed(t *testing.T) {
	ep := &Endpoint{EventTypes: []string{"order.paid", "order.refunded"}}
	assert.True(t, ep.Subscribed("order.paid"))
	assert.False(t, ep.Subscribed("order.created"))

	wildcard := &Endpoint{EventTypes: []string{"*"}}
	assert.True(t, wildcard.Subscribed("anything.at.all"))

	empty := &Endpoint{}
	assert.False(t, empty.Subscribed("order.paid"))
}

func TestDeliverable(t *testing.T) {
	assert.True(t, (&Endpoint{Status: EndpointActive}).Deliverable())
	assert.False(t, (&Endpoint{Status: EndpointPaused}).Deliverable())
	assert.False(t, (&Endpoint{Status: EndpointDeleted}).Deliverable())
}

func TestTimeoutDefault(t *testing.T) {
	assert.Equal(t, 30*time.Second, (&Endpoint{}).Timeout())
	assert.Equal(t, 5*time.Second, (&Endpoint{TimeoutSeconds: 5}).Timeout())
}

func TestDeliveryTerminal(t *testing.T) {
	assert.False(t, DeliveryPending.Terminal())
	assert.False(t, DeliveryFailed.Terminal())
	assert.True(t, DeliverySent.Terminal())
	assert.True(t, DeliveryExhausted.Terminal())
}
