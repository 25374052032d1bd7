// Package events provides the event subject Mission Control's queue
// ingress listens on.
package events

// IngressSubject is the default subject the queue consumer listens on.
const IngressSubject = "mission-control.ingress"
