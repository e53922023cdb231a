// Package events dispatches messages pushed by the imaging server over its
// publish/subscribe channels (mount control, three-point polar alignment and
// live events). Each channel has at most one registered callback; payloads
// are decoded from the server envelope before delivery.
package events
