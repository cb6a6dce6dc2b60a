package dotdir_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spoolworks/spool/pkg/dotdir"
)

var _ = Describe("LastSession", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "lastsession-test-*")
		Expect(err).NotTo(HaveOccurred())

		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns nil when no record exists", func() {
		rec, err := m.LoadLastSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(BeNil())
	})

	It("round-trips a record", func() {
		saved := &dotdir.LastSession{
			SessionID:    "abc-123",
			Outcome:      "completed",
			Reasons:      []string{"stop_marker"},
			ContentBytes: 42,
			Chunks:       7,
			FinishedAt:   time.Now().UTC().Truncate(time.Second),
		}

		Expect(m.SaveLastSession(saved, tmpDir)).To(Succeed())

		loaded, err := m.LoadLastSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(saved))
	})

	It("rejects a nil record", func() {
		Expect(m.SaveLastSession(nil, tmpDir)).To(HaveOccurred())
	})

	It("clears an existing record", func() {
		saved := &dotdir.LastSession{SessionID: "abc", Outcome: "failed"}
		Expect(m.SaveLastSession(saved, tmpDir)).To(Succeed())

		Expect(m.ClearLastSession(tmpDir)).To(Succeed())

		rec, err := m.LoadLastSession(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(BeNil())
	})

	It("clearing a missing record is not an error", func() {
		Expect(m.ClearLastSession(tmpDir)).To(Succeed())
	})
})
