package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/repository"
)

// memJobs is an in-memory JobStore.
type memJobs struct {
	mu    sync.Mutex
	jobs  map[string]domain.IngestionJob
	saves []domain.IngestionJob
}

func newMemJobs(jobs ...*domain.IngestionJob) *memJobs {
	m := &memJobs{jobs: make(map[string]domain.IngestionJob)}
	for _, j := range jobs {
		m.jobs[j.ID] = *j
	}
	return m
}

func (m *memJobs) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &j, nil
}

func (m *memJobs) Save(ctx context.Context, job *domain.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}
	m.jobs[job.ID] = *job
	m.saves = append(m.saves, *job)
	return nil
}

// history returns every saved snapshot in order.
func (m *memJobs) history() []domain.IngestionJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.IngestionJob(nil), m.saves...)
}

func (m *memJobs) Refresh(ctx context.Context, job *domain.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[job.ID]
	if !ok {
		return repository.ErrNotFound
	}
	*job = j
	return nil
}

func (m *memJobs) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// memFiles is an in-memory FileSource.
type memFiles map[string][]byte

func (m memFiles) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m memFiles) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m[key]
	return ok, nil
}

func (m memFiles) Size(ctx context.Context, key string) (int64, error) {
	data, ok := m[key]
	if !ok {
		return 0, errors.New("no such file")
	}
	return int64(len(data)), nil
}

// memCatalog is an in-memory CatalogStore keyed by upper-cased SKU.
type memCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
	nextID   uint
	failBulk bool
	failSKUs map[string]bool
	panicOn  bool
	upserts  int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{products: make(map[string]domain.Product), failSKUs: make(map[string]bool)}
}

func (c *memCatalog) FindBySKUs(ctx context.Context, skus []string) ([]domain.Product, error) {
	if c.panicOn {
		panic("catalog exploded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Product
	for _, sku := range skus {
		if p, ok := c.products[domain.NormalizeSKU(sku)]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *memCatalog) BulkCreate(ctx context.Context, products []domain.Product) (int64, error) {
	if c.failBulk {
		return 0, errors.New("bulk unsupported")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var created int64
	for _, p := range products {
		sku := domain.NormalizeSKU(p.SKU)
		if _, ok := c.products[sku]; ok {
			continue
		}
		c.nextID++
		p.ID = c.nextID
		p.SKU = sku
		c.products[sku] = p
		created++
	}
	return created, nil
}

func (c *memCatalog) BulkUpdate(ctx context.Context, products []domain.Product) error {
	if c.failBulk && len(products) > 0 {
		return errors.New("bulk unsupported")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		for sku, existing := range c.products {
			if existing.ID == p.ID {
				existing.Name = p.Name
				existing.Description = p.Description
				existing.IsActive = p.IsActive
				c.products[sku] = existing
			}
		}
	}
	return nil
}

func (c *memCatalog) UpsertOne(ctx context.Context, p *domain.Product) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
	sku := domain.NormalizeSKU(p.SKU)
	if c.failSKUs[sku] {
		return false, errors.New("constraint violation")
	}
	if existing, ok := c.products[sku]; ok {
		existing.Name = p.Name
		existing.Description = p.Description
		existing.IsActive = p.IsActive
		c.products[sku] = existing
		return false, nil
	}
	c.nextID++
	p.ID = c.nextID
	p.SKU = sku
	c.products[sku] = *p
	return true, nil
}

func (c *memCatalog) get(sku string) (domain.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[sku]
	return p, ok
}
