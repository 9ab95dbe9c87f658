package descriptor

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/armature/gpu"
	"github.com/vkngwrapper/armature/internal/utils"
	"github.com/vkngwrapper/armature/memutils"
	"github.com/vkngwrapper/armature/memutils/metadata"
)

// CPUHeapManager grows a list of descriptor pages of a single heap type on demand and
// hands out allocations from whichever page can hold them
type CPUHeapManager struct {
	logger             *slog.Logger
	device             gpu.Device
	heapType           gpu.HeapType
	descriptorsPerPage int
	useMutex           bool
	strategy           metadata.AllocationStrategy

	mutex     utils.OptionalMutex
	pages     []*Page
	freePages *btree.BTreeG[int]
}

// NewCPUHeapManager creates a manager whose pages each hold descriptorsPerPage descriptors.
// No pages are created until the first allocation.
func NewCPUHeapManager(logger *slog.Logger, device gpu.Device, heapType gpu.HeapType, descriptorsPerPage int, useMutex bool) (*CPUHeapManager, error) {
	if descriptorsPerPage <= 0 {
		return nil, errors.Errorf("descriptors per page must be positive, got %d", descriptorsPerPage)
	}

	return &CPUHeapManager{
		logger:             logger,
		device:             device,
		heapType:           heapType,
		descriptorsPerPage: descriptorsPerPage,
		useMutex:           useMutex,
		strategy:           metadata.AllocationStrategyMinOffset,
		mutex:              utils.OptionalMutex{UseMutex: useMutex},
		freePages:          btree.NewOrderedG[int](btreeDegree),
	}, nil
}

func (m *CPUHeapManager) HeapType() gpu.HeapType { return m.heapType }
func (m *CPUHeapManager) DescriptorsPerPage() int { return m.descriptorsPerPage }

// SetAllocationStrategy changes how every page, present and future, chooses the free
// range to allocate from
func (m *CPUHeapManager) SetAllocationStrategy(strategy metadata.AllocationStrategy) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.strategy = strategy
	for _, page := range m.pages {
		page.SetAllocationStrategy(strategy)
	}
}

// PageCount returns the number of pages created so far
func (m *CPUHeapManager) PageCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.pages)
}

// FreePageCount returns the number of pages with at least one free descriptor
func (m *CPUHeapManager) FreePageCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.freePages.Len()
}

// Allocate returns count contiguous descriptors. Pages with free space are tried in
// creation order, and a new page is created when none of them can hold the request.
func (m *CPUHeapManager) Allocate(count int) (Allocation, error) {
	m.logger.Debug("CPUHeapManager::Allocate", slog.String("HeapType", m.heapType.String()), slog.Int("Count", count))

	if count <= 0 {
		return Allocation{}, errors.Errorf("descriptor allocation count must be positive, got %d", count)
	}
	if count > m.descriptorsPerPage {
		return Allocation{}, errors.Errorf("cannot allocate %d descriptors from pages of %d descriptors", count, m.descriptorsPerPage)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var found *Page
	var offset int
	var filled []int
	m.freePages.Ascend(func(index int) bool {
		page := m.pages[index]
		reserved, ok := page.reserve(count)

		if page.NumFreeElements() == 0 {
			filled = append(filled, index)
		}

		if ok {
			found, offset = page, reserved
			return false
		}
		return true
	})

	for _, index := range filled {
		m.freePages.Delete(index)
	}

	if found != nil {
		return found.allocationAt(offset, count), nil
	}

	page, err := m.createPage()
	if err != nil {
		return Allocation{}, err
	}

	offset, ok := page.reserve(count)
	if !ok {
		panic(errors.AssertionFailedf("a new page of %d descriptors could not satisfy an allocation of %d", m.descriptorsPerPage, count))
	}

	if page.NumFreeElements() > 0 {
		m.freePages.ReplaceOrInsert(len(m.pages) - 1)
	}

	return page.allocationAt(offset, count), nil
}

func (m *CPUHeapManager) createPage() (*Page, error) {
	m.logger.Debug("CPUHeapManager::createPage", slog.String("HeapType", m.heapType.String()), slog.Int("PageIndex", len(m.pages)))

	page, err := NewPage(m.logger, m.device, m.heapType, m.descriptorsPerPage, m.useMutex)
	if err != nil {
		return nil, err
	}
	page.SetAllocationStrategy(m.strategy)

	m.pages = append(m.pages, page)
	return page, nil
}

// ReleaseFreedAllocations releases pending frees tagged at or below fence on every page
// and returns the number of ranges released
func (m *CPUHeapManager) ReleaseFreedAllocations(fence uint64) int {
	m.mutex.Lock()
	pages := m.pages
	m.mutex.Unlock()

	released := 0
	var touched []int
	for index, page := range pages {
		count := page.ReleaseFreedAllocations(fence)
		if count > 0 {
			released += count
			touched = append(touched, index)
		}
	}

	if len(touched) == 0 {
		return 0
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, index := range touched {
		if m.pages[index].NumFreeElements() > 0 {
			m.freePages.ReplaceOrInsert(index)
		}
	}

	return released
}

// Destroy releases every pending free and destroys every page. Any descriptors still
// allocated are a fatal error.
func (m *CPUHeapManager) Destroy() {
	m.logger.Debug("CPUHeapManager::Destroy", slog.String("HeapType", m.heapType.String()), slog.Int("Pages", len(m.pages)))

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, page := range m.pages {
		page.drain()
		page.Destroy()
	}

	m.pages = nil
	m.freePages.Clear(false)
}

// AddStatistics sums the usage of every page into stats
func (m *CPUHeapManager) AddStatistics(stats *memutils.Statistics) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, page := range m.pages {
		page.AddStatistics(stats)
	}
}

// PrintDetailedMap writes a json object describing every page to writer
func (m *CPUHeapManager) PrintDetailedMap(writer *jwriter.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("HeapType").String(m.heapType.String())
	objState.Name("DescriptorsPerPage").Int(m.descriptorsPerPage)

	pages := objState.Name("Pages").Array()
	defer pages.End()

	for _, page := range m.pages {
		pageObj := pages.Object()
		page.BlockJsonData(pageObj)
		pageObj.End()
	}
}
