// Package channels implements the closed set of channel adapters the
// ingress gateway composes: one verifier + parser pair per supported
// channel (facebook, instagram, whatsapp, website form). Adapters are
// selected by route, never by payload sniffing.
package channels
