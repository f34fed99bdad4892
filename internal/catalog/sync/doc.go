// Package sync keeps the local catalog store and the optional remote store
// mirrored behind one CRUD surface.
//
// Architecture:
//
//	caller -> Coordinator -> strategy
//	                           localOnly:       local store
//	                           localPlusRemote: remote store (best effort) -> local store (always)
//
// The strategy is picked once, from Config.RemoteEnabled, when the
// Coordinator is built.
//
// Guarantees:
//   - Remote failures never reach the caller. They are logged, counted in
//     Status, and the call continues against the local store.
//   - Every write lands in the local store, whatever the remote said.
//   - After a successful remote read or a remote change notification the
//     local mirror holds exactly the remote snapshot (full replace).
//   - Drafts never leave the device.
//
// Local failures (db.ErrStorageUnavailable) are returned to the caller since
// there is nothing left to fall back to.
//
// Conflicts are resolved by whichever write lands last.
package sync
