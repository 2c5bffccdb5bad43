// Package qpack implements RFC 9204 QPACK header compression: the static
// and dynamic tables, the encoder and decoder for header blocks, and the
// encoder-stream / decoder-stream instruction codecs that keep both ends'
// dynamic tables coherent.
//
// It mirrors the shape of github.com/quic-go/qpack (not a dependency of
// this module; see DESIGN.md) but adds the dynamic table, blocked-stream resumption, and
// sideband instructions that a static-table-only decoder does not need.
package qpack
