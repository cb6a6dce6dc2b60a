package engine_test

import (
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spoolworks/spool/engine"
	"github.com/spoolworks/spool/pkg/governor"
)

// recordingSink captures notifications for assertions. Notify runs on the
// engine's processing goroutine, so access is locked.
type recordingSink struct {
	mu  sync.Mutex
	all []engine.Notification
}

func (s *recordingSink) Notify(n engine.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, n)
}

func (s *recordingSink) list() []engine.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Notification(nil), s.all...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.all)
}

func (s *recordingSink) completed() *engine.Completed {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.all {
		if c, ok := n.(engine.Completed); ok {
			return &c
		}
	}
	return nil
}

func (s *recordingSink) failed() *engine.Failed {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.all {
		if f, ok := n.(engine.Failed); ok {
			return &f
		}
	}
	return nil
}

func (s *recordingSink) started() []engine.Started {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []engine.Started
	for _, n := range s.all {
		if st, ok := n.(engine.Started); ok {
			out = append(out, st)
		}
	}
	return out
}

func tokenPayload(i int) []byte {
	return []byte(fmt.Sprintf(`{"kind":"token","content":"chunk %02d. "}`, i))
}

var _ = Describe("Engine", func() {
	var (
		sink *recordingSink
		eng  *engine.Engine
	)

	newEngine := func(limits governor.Limits) *engine.Engine {
		return engine.New(engine.Config{
			Limits: limits,
			Sink:   sink,
		})
	}

	BeforeEach(func() {
		sink = &recordingSink{}
	})

	AfterEach(func() {
		if eng != nil {
			eng.Close()
			eng = nil
		}
	})

	Describe("session lifecycle", func() {
		It("runs start, chunks, and completion end to end", func() {
			eng = newEngine(governor.Limits{})

			Expect(eng.StartSession("generate a parser")).To(BeTrue())

			Eventually(sink.started).Should(HaveLen(1))
			Expect(sink.started()[0].SessionID).NotTo(BeEmpty())
			Expect(sink.started()[0].Hint).To(Equal("generate a parser"))

			for i := 1; i <= 3; i++ {
				Expect(eng.PushChunk(tokenPayload(i))).To(BeTrue())
			}
			Expect(eng.CompleteSession("")).To(BeTrue())

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			done := sink.completed()
			Expect(done.SessionID).To(Equal(sink.started()[0].SessionID))
			Expect(done.FinalContent).To(ContainSubstring("chunk 01."))
			Expect(done.FinalContent).To(ContainSubstring("chunk 03."))
			Expect(done.Reasons).To(ContainElement("transport_complete"))
			Expect(done.Stats.TotalProcessed).To(Equal(3))

			Eventually(func() string {
				return eng.Snapshot().State
			}).Should(Equal("idle"))
		})

		It("rejects a second start while a session is in flight", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("first")
			Eventually(sink.started).Should(HaveLen(1))

			eng.StartSession("second")
			Consistently(sink.started, 150*time.Millisecond).Should(HaveLen(1))
		})

		It("starts a fresh session after the previous one completed", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("first")
			eng.PushChunk(tokenPayload(1))
			eng.CompleteSession("")
			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			eng.StartSession("second")
			Eventually(sink.started).Should(HaveLen(2))

			ids := sink.started()
			Expect(ids[1].SessionID).NotTo(Equal(ids[0].SessionID))

			Eventually(func() string {
				return eng.Snapshot().State
			}).Should(Equal("starting"))
		})

		It("drops chunks that arrive after completion", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))
			eng.CompleteSession("")
			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			before := sink.count()
			eng.PushChunk(tokenPayload(99))
			Consistently(sink.count, 150*time.Millisecond).Should(Equal(before))
		})

		It("fails the session on an explicit error signal", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))
			eng.FailSession("upstream connection lost")

			Eventually(sink.failed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.failed().Reason).To(Equal("upstream connection lost"))
			Expect(sink.failed().Partial).To(ContainSubstring("chunk 01."))

			Eventually(func() string {
				return eng.Snapshot().State
			}).Should(Equal("idle"))
		})
	})

	Describe("content flushing", func() {
		It("delivers buffered content through ContentUpdated", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))

			Eventually(func() string {
				for _, n := range sink.list() {
					if cu, ok := n.(engine.ContentUpdated); ok {
						return cu.Snapshot
					}
				}
				return ""
			}, 2*time.Second).Should(ContainSubstring("chunk 01."))
		})

		It("truncates at a stop marker and completes", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`{"kind":"token","content":"result = 42<|EOT|>ignored trailing"}`))

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			done := sink.completed()
			Expect(done.FinalContent).To(Equal("result = 42"))
			Expect(done.FinalContent).NotTo(ContainSubstring("ignored"))
			Expect(done.Reasons).To(ContainElement("stop_marker"))
		})

		It("terminates on markers containing repeated characters", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`{"kind":"token","content":"result = 42###END###ignored trailing"}`))

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			done := sink.completed()
			Expect(done.FinalContent).To(Equal("result = 42"))
			Expect(done.FinalContent).NotTo(ContainSubstring("ignored"))
			Expect(done.Reasons).To(ContainElement("stop_marker"))
		})

		It("strips transport artifacts before buffering", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`{"kind":"token","content":"<|im_start|>assistant\nhello"}`))
			eng.CompleteSession("")

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.completed().FinalContent).NotTo(ContainSubstring("<|im_start|>"))
			Expect(sink.completed().FinalContent).To(ContainSubstring("hello"))
		})

		It("discards unparseable payloads without failing the session", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`not json at all`))
			eng.PushChunk([]byte(`{"kind":"token"}`))
			eng.PushChunk(tokenPayload(1))
			eng.CompleteSession("")

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.failed()).To(BeNil())
			Expect(sink.completed().Stats.TotalProcessed).To(Equal(1))
		})
	})

	Describe("deduplication", func() {
		It("suppresses an identical payload inside the window", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))
			eng.PushChunk(tokenPayload(1))
			eng.PushChunk(tokenPayload(2))
			eng.CompleteSession("")

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.completed().Stats.TotalProcessed).To(Equal(2))
		})

		It("does not suppress duplicates across sessions", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))
			eng.CompleteSession("")
			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))
			eng.CompleteSession("")

			Eventually(func() int {
				var count int
				for _, n := range sink.list() {
					if _, ok := n.(engine.Completed); ok {
						count++
					}
				}
				return count
			}, 2*time.Second).Should(Equal(2))

			for _, n := range sink.list() {
				if c, ok := n.(engine.Completed); ok {
					Expect(c.Stats.TotalProcessed).To(Equal(1))
				}
			}
		})
	})

	Describe("performance limits", func() {
		It("completes early once the chunk budget is reached", func() {
			eng = newEngine(governor.Limits{MaxChunks: 3})

			eng.StartSession("")
			for i := 1; i <= 6; i++ {
				eng.PushChunk(tokenPayload(i))
			}

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			done := sink.completed()
			Expect(done.Reasons).To(ContainElement("performance_optimization"))
			Expect(done.Stats.TotalProcessed).To(Equal(3))
			Expect(done.FinalContent).To(ContainSubstring("chunk 03."))
			Expect(done.FinalContent).NotTo(ContainSubstring("chunk 04."))
		})

		It("aborts at the hard limit", func() {
			eng = newEngine(governor.Limits{
				MaxChunks:          100,
				EmergencyThreshold: 100,
				HardLimit:          4,
			})

			eng.StartSession("")
			for i := 1; i <= 6; i++ {
				eng.PushChunk(tokenPayload(i))
			}

			Eventually(sink.failed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.failed().Reason).To(Equal("hard_limit_exceeded"))
			Expect(sink.failed().Partial).To(ContainSubstring("chunk 04."))
			Expect(sink.failed().Partial).NotTo(ContainSubstring("chunk 05."))

			Eventually(func() string {
				return eng.Snapshot().State
			}).Should(Equal("idle"))
		})

		It("force-completes when chunks keep arriving past the emergency threshold", func() {
			eng = newEngine(governor.Limits{
				MaxChunks:          100,
				EmergencyThreshold: 3,
				HardLimit:          100,
			})

			eng.StartSession("")
			for i := 1; i <= 6; i++ {
				eng.PushChunk(tokenPayload(i))
			}

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			done := sink.completed()
			Expect(done.Reasons).To(ContainElement("performance_optimization"))
			Expect(done.Stats.TotalProcessed).To(Equal(3))
			Expect(done.FinalContent).To(ContainSubstring("chunk 03."))
			Expect(done.FinalContent).NotTo(ContainSubstring("chunk 04."))
			Expect(sink.failed()).To(BeNil())

			Eventually(func() string {
				return eng.Snapshot().State
			}).Should(Equal("idle"))
		})

		It("emits a single warning past the warning threshold", func() {
			eng = newEngine(governor.Limits{WarningThreshold: 2})

			eng.StartSession("")
			for i := 1; i <= 5; i++ {
				eng.PushChunk(tokenPayload(i))
			}
			eng.CompleteSession("")

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			var warnings int
			for _, n := range sink.list() {
				if _, ok := n.(engine.Warning); ok {
					warnings++
				}
			}
			Expect(warnings).To(Equal(1))
		})

		It("fails the session when garbled content is detected", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`{"kind":"token","content":"undefinedundefinedundefinedundefined"}`))

			Eventually(sink.failed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.failed().Reason).To(ContainSubstring("garbled content"))
		})
	})

	Describe("structured mode", func() {
		It("splits explanation and code into channels and completes them together", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`{"kind":"explanation","content":"Sorts in place."}`))
			eng.PushChunk([]byte(`{"kind":"code","content":"items.sort()","metadata":{"language":"python"}}`))
			eng.PushChunk([]byte(`{"kind":"done"}`))

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			done := sink.completed()
			Expect(done.Structured).NotTo(BeNil())
			Expect(done.Structured.Explanation.Content).To(Equal("Sorts in place."))
			Expect(done.Structured.Explanation.IsComplete).To(BeTrue())
			Expect(done.Structured.Code.Content).To(Equal("items.sort()"))
			Expect(done.Structured.Code.IsComplete).To(BeTrue())
			Expect(done.Structured.Meta.TotalChunks).To(Equal(3))
		})

		It("treats token chunks as preview only once structured mode is active", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`{"kind":"explanation","content":"Explains."}`))
			eng.PushChunk([]byte(`{"kind":"token","content":"preview text"}`))
			eng.PushChunk([]byte(`{"kind":"done"}`))

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())

			var previews []engine.TokenPreview
			for _, n := range sink.list() {
				if p, ok := n.(engine.TokenPreview); ok {
					previews = append(previews, p)
				}
			}
			Expect(previews).To(HaveLen(1))
			Expect(previews[0].Text).To(Equal("preview text"))

			done := sink.completed()
			Expect(done.Structured.Explanation.Content).To(Equal("Explains."))
			Expect(done.Structured.Code.Content).To(BeEmpty())
			Expect(done.Structured.Meta.TotalChunks).To(Equal(2))
		})

		It("completes with empty channels when done arrives before activation", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk([]byte(`{"kind":"done"}`))

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.completed().Structured).To(BeNil())
			Expect(sink.completed().Reasons).To(ContainElement("done"))
		})
	})

	Describe("snapshot", func() {
		It("reports the live session state", func() {
			eng = newEngine(governor.Limits{})

			Expect(eng.Snapshot().State).To(Equal("idle"))

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))

			Eventually(func() string {
				return eng.Snapshot().State
			}).Should(Equal("active"))

			snap := eng.Snapshot()
			Expect(snap.SessionID).NotTo(BeEmpty())
			Expect(snap.Stats.TotalProcessed).To(Equal(1))
			Expect(snap.BufferLen).To(BeNumerically(">", 0))
		})

		It("clears derived buffers on return to idle", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			eng.PushChunk(tokenPayload(1))
			eng.CompleteSession("")

			Eventually(sink.completed, 2*time.Second).ShouldNot(BeNil())
			Expect(sink.completed().FinalContent).To(ContainSubstring("chunk 01."))

			Eventually(func() string {
				return eng.Snapshot().State
			}).Should(Equal("idle"))

			snap := eng.Snapshot()
			Expect(snap.BufferLen).To(BeZero())
			Expect(snap.StructuredActive).To(BeFalse())
		})

		It("returns a zero snapshot after Close", func() {
			eng = newEngine(governor.Limits{})
			eng.Close()

			snap := eng.Snapshot()
			Expect(snap.State).To(BeEmpty())
			eng = nil
		})
	})

	Describe("session context", func() {
		It("cancels the abort context at teardown", func() {
			eng = newEngine(governor.Limits{})

			eng.StartSession("")
			Eventually(sink.started).Should(HaveLen(1))

			Eventually(func() bool {
				return eng.SessionContext() != nil
			}).Should(BeTrue())
			ctx := eng.SessionContext()

			eng.CompleteSession("")
			Eventually(ctx.Done(), 2*time.Second).Should(BeClosed())
		})
	})
})
