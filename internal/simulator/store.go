package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/imamik/pbctl/internal/gateway"
)

// ErrNotFound is returned when a machine is not in the store.
var ErrNotFound = errors.New("not found")

// Machine is the persisted state of one simulated server.
type Machine struct {
	Label        string               `json:"label"`
	ID           string               `json:"id"`
	DatacenterID string               `json:"datacenterId"`
	Name         string               `json:"name"`
	State        gateway.MachineState `json:"state"`
	VMState      gateway.ServerState  `json:"vmState"`
	Cores        int                  `json:"cores"`
	RAM          int                  `json:"ram"`
	// Version increases with every command so that a pending transition
	// never overwrites the effect of a later command.
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot returns the gateway view of m.
func (m *Machine) Snapshot() *gateway.Server {
	return &gateway.Server{
		ID:           m.ID,
		Name:         m.Name,
		DatacenterID: m.DatacenterID,
		State:        m.State,
		VMState:      m.VMState,
		Cores:        m.Cores,
		RAM:          m.RAM,
	}
}

// Store persists simulated machines keyed by datacenter and server ID.
type Store interface {
	SaveMachine(ctx context.Context, m *Machine) error
	GetMachine(ctx context.Context, datacenterID, id string) (*Machine, error)
	ListMachines(ctx context.Context, datacenterID string) ([]*Machine, error)
	Close() error
}

func machineKey(datacenterID, id string) string {
	return "machine:" + datacenterID + "/" + id
}

func datacenterPrefix(datacenterID string) string {
	return "machine:" + datacenterID + "/"
}

func sortMachines(ms []*Machine) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}

// MemoryStore keeps machines in a map.
type MemoryStore struct {
	mu       sync.RWMutex
	machines map[string]Machine
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{machines: make(map[string]Machine)}
}

func (s *MemoryStore) SaveMachine(_ context.Context, m *Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines[machineKey(m.DatacenterID, m.ID)] = *m
	return nil
}

func (s *MemoryStore) GetMachine(_ context.Context, datacenterID, id string) (*Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.machines[machineKey(datacenterID, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) ListMachines(_ context.Context, datacenterID string) ([]*Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := datacenterPrefix(datacenterID)
	var out []*Machine
	for key, m := range s.machines {
		if strings.HasPrefix(key, prefix) {
			m := m
			out = append(out, &m)
		}
	}
	sortMachines(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// BadgerStore persists machines in a Badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	return openBadger(opts)
}

// OpenBadgerMemoryStore opens a Badger database that lives only in memory.
func OpenBadgerMemoryStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) SaveMachine(_ context.Context, m *Machine) error {
	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return txn.Set([]byte(machineKey(m.DatacenterID, m.ID)), data)
	})
}

func (s *BadgerStore) GetMachine(_ context.Context, datacenterID, id string) (*Machine, error) {
	var out Machine
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(machineKey(datacenterID, id)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListMachines(_ context.Context, datacenterID string) ([]*Machine, error) {
	var out []*Machine
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(datacenterPrefix(datacenterID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m Machine
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &m)
			}); err != nil {
				return err
			}
			out = append(out, &m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMachines(out)
	return out, nil
}
