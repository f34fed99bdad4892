package dashboard

import (
	"encoding/binary"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/language"

	"github.com/crumbworks/storefront/internal/catalog/schema"
	catalogsync "github.com/crumbworks/storefront/internal/catalog/sync"
	"github.com/crumbworks/storefront/internal/catalog/taxonomy"
)

// SnapshotData is the payload of a snapshot message. Draft records carry
// inline images, so drafts are sent as ids only.
type SnapshotData struct {
	Kind    schema.Kind       `json:"kind"`
	Count   int               `json:"count"`
	IDs     []string          `json:"ids"`
	Records []json.RawMessage `json:"records,omitempty"`
}

// DraftStagedData contains the id and origin of a staged draft
type DraftStagedData struct {
	ID     string `json:"id"`
	Source string `json:"source,omitempty"`
}

// Handler turns catalog events into dashboard messages. It keeps the last
// products and categories it saw so the taxonomy can be rebuilt whenever
// either side changes. Its methods are safe for concurrent use.
type Handler struct {
	server     *Server
	reconciler *taxonomy.Reconciler
	logger     *log.Logger

	mu         sync.Mutex
	products   []schema.Product
	categories []schema.Category
	entries    []taxonomy.Entry
	seen       map[schema.Kind]uint64 // fingerprint of the last snapshot per kind
}

// NewHandler creates a new event handler connected to a dashboard server.
// A nil reconciler sorts with the root locale.
func NewHandler(server *Server, reconciler *taxonomy.Reconciler, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	if reconciler == nil {
		reconciler = taxonomy.New(language.Und)
	}
	return &Handler{
		server:     server,
		reconciler: reconciler,
		logger:     logger,
		seen:       make(map[schema.Kind]uint64),
	}
}

// OnSnapshot broadcasts the new contents of kind, and the rebuilt taxonomy
// when products or categories changed. A snapshot identical to the last one
// seen for kind is dropped.
func (h *Handler) OnSnapshot(kind schema.Kind, docs []schema.Document) {
	sum := fingerprint(docs)
	h.mu.Lock()
	last, ok := h.seen[kind]
	h.seen[kind] = sum
	h.mu.Unlock()
	if ok && last == sum {
		return
	}

	data := SnapshotData{Kind: kind, Count: len(docs), IDs: schema.IDs(docs)}
	if kind != schema.KindDrafts {
		data.Records = make([]json.RawMessage, len(docs))
		for i, doc := range docs {
			data.Records[i] = doc.Body
		}
	}
	h.send(MessageTypeSnapshot, string(kind), data)

	switch kind {
	case schema.KindProducts:
		products, skipped := schema.DecodeAll[schema.Product, *schema.Product](docs)
		h.logSkipped(kind, skipped)
		h.mu.Lock()
		h.products = products
		h.mu.Unlock()
	case schema.KindCategories:
		categories, skipped := schema.DecodeAll[schema.Category, *schema.Category](docs)
		h.logSkipped(kind, skipped)
		h.mu.Lock()
		h.categories = categories
		h.mu.Unlock()
	default:
		return
	}
	h.refreshTaxonomy()
}

// OnSyncStatus broadcasts remote mirror health.
func (h *Handler) OnSyncStatus(status catalogsync.Status) {
	h.send(MessageTypeSyncStatus, "", status)
}

// OnDraftStaged announces a draft created from an inbox image.
func (h *Handler) OnDraftStaged(d schema.Draft) {
	h.logger.Printf("Draft staged: %s (%s)", d.ID, d.Source)
	h.send(MessageTypeDraftStaged, "", DraftStagedData{ID: d.ID, Source: d.Source})
}

// Taxonomy returns the last reconciled filter list.
func (h *Handler) Taxonomy() []taxonomy.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]taxonomy.Entry(nil), h.entries...)
}

func (h *Handler) refreshTaxonomy() {
	// Broadcast never blocks, so sending under the lock keeps taxonomy
	// messages in rebuild order.
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.reconciler.Reconcile(h.categories, h.products)
	h.send(MessageTypeTaxonomy, "", h.entries)
}

func (h *Handler) send(t MessageType, kind string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", t, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      t,
		Kind:      kind,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// fingerprint hashes ids, creation times and bodies in snapshot order.
func fingerprint(docs []schema.Document) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, doc := range docs {
		_, _ = d.WriteString(doc.ID)
		binary.LittleEndian.PutUint64(buf[:], uint64(doc.CreatedAt))
		_, _ = d.Write(buf[:])
		_, _ = d.Write(doc.Body)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

func (h *Handler) logSkipped(kind schema.Kind, skipped int) {
	if skipped > 0 {
		h.logger.Printf("Warning: skipped %d undecodable %s records", skipped, kind)
	}
}
