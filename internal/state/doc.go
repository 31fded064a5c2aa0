// Package state holds the list pages the views render.
//
// # Overview
//
// A PageStore owns one page of a filtered, paginated collection: saved songs
// page N under some filter, the new-songs list, a playlist's members, the
// playlists themselves. Views read immutable snapshots; loads, pollers and
// destructive actions write through the store's methods.
//
// # Keys
//
// A page is identified by a PageKey: the filter signature plus the page
// index. The held page is only exposed while the current key equals the key
// it was fetched under. Changing either part always loads, and until that
// load lands the snapshot is stale and carries no items.
//
//	store := state.NewPageStore(state.SavedSongs(client, 15), state.PageKey{}, state.Options{Name: "saved"})
//	_ = store.Load(ctx)
//	_ = store.SetFilter(ctx, state.Filter{ExcludeInPlaylist: true}) // back to page 0
//	snap := store.Snapshot()
//
// # Ordering
//
// Each load takes a generation token. A completion whose token is no longer
// current (a newer load started, the key changed, or the store was closed)
// is dropped and the load returns ErrStale or ErrClosed. Callers treat both
// as silent.
//
// # Mutations
//
// AfterMutation reloads the current key. When the reload shows the index is
// now past the last page it steps back one page and loads again. Stores are
// never coupled: a caller whose action affects two stores triggers both.
//
// Drop and UpdateItem edit the held page in place for the gap between a
// successful action and the next authoritative load.
//
// # Defensive Copying
//
// Rows are cloned on the way in and on the way out, so no two stores and no
// snapshot share a row.
package state
