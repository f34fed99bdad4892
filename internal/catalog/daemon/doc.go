// Package daemon keeps a running storefront catalog live.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - InboxWatcher: fsnotify monitoring of a single media inbox directory
//   - Daemon: runs the legacy migration, holds catalog subscriptions,
//     debounces inbox changes into drafts and reports sync health
//
// Everything the daemon observes goes to a Publisher, normally the
// dashboard handler:
//
//	handler := dashboard.NewHandler(server, taxonomy.New(language.Und), nil)
//	d, err := daemon.New(coord, local, local, handler, &daemon.Config{
//	    InboxDir: ".storefront/inbox",
//	})
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is cancelled
//
// # Inbox
//
// Image files dropped directly into the inbox are encoded as data URLs and
// saved as drafts once they have been quiet for DebounceInterval. Staged
// files are moved into the ingested subdirectory so a restart does not
// stage them twice. Images present at startup are staged immediately.
package daemon
