package mqtt

import "fmt"

// Subscribe routes messages matching filter (wildcards allowed) to handler
// and keeps the subscription across reconnects. Subscribing to the same
// filter again replaces its handler.
//
// The route is registered before the broker acknowledges, so retained
// messages delivered during the SUBSCRIBE round trip are not lost. On
// failure the route is withdrawn.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validate(filter, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routes.add(filter, qos, handler)
	// A nil callback leaves delivery to the default handler and the router.
	if err := await(c.paho.Subscribe(filter, qos, nil), defaultPublishTimeout); err != nil {
		c.routes.remove(filter)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// Unsubscribe stops routing filter and tells the broker.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routes.remove(filter)
	if err := await(c.paho.Unsubscribe(filter), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, filter, err)
	}
	return nil
}

// SubscriptionCount returns the number of routed filters.
func (c *Client) SubscriptionCount() int {
	return c.routes.len()
}

// HasSubscription reports whether the exact filter string is routed.
func (c *Client) HasSubscription(filter string) bool {
	return c.routes.has(filter)
}
