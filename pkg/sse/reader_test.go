package sse

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("parses a single event", func() {
			r := NewReader(strings.NewReader("data: hello\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
			Expect(ev.Type).To(BeEmpty())

			ev, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("parses a typed chunk event", func() {
			input := "event: chunk\ndata: {\"kind\":\"token\",\"content\":\"x\"}\n\n"
			r := NewReader(strings.NewReader(input))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Type).To(Equal("chunk"))
			Expect(ev.Data).To(Equal("{\"kind\":\"token\",\"content\":\"x\"}"))
		})

		It("parses a sequence of events in order", func() {
			input := "data: first\n\nid: 7\ndata: second\n\ndata: [DONE]\n\n"
			r := NewReader(strings.NewReader(input))

			ev1, _ := r.Next()
			Expect(ev1.Data).To(Equal("first"))

			ev2, _ := r.Next()
			Expect(ev2.Data).To(Equal("second"))
			Expect(ev2.ID).To(Equal("7"))

			ev3, _ := r.Next()
			Expect(ev3.Data).To(Equal("[DONE]"))

			ev4, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev4).To(BeNil())
		})

		It("joins multiple data lines with newline", func() {
			r := NewReader(strings.NewReader("data: one\ndata: two\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("one\ntwo"))
		})

		It("skips comment lines", func() {
			r := NewReader(strings.NewReader(": keep-alive\ndata: hello\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
		})

		It("ignores retry and unknown fields", func() {
			r := NewReader(strings.NewReader("retry: 3000\nfoo: bar\ndata: hello\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
		})

		It("handles a data field with no space after the colon", func() {
			r := NewReader(strings.NewReader("data:tight\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("tight"))
		})

		It("yields the in-progress event when the stream ends without a blank line", func() {
			r := NewReader(strings.NewReader("data: unterminated"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("unterminated"))
		})

		It("returns nil on empty input", func() {
			r := NewReader(strings.NewReader(""))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("skips leading blank lines", func() {
			r := NewReader(strings.NewReader("\n\ndata: hello\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello"))
		})
	})

	Describe("tee", func() {
		It("forwards all bytes verbatim, comments and framing included", func() {
			input := ": keep-alive\ndata: first\n\ndata: second\n\n"
			var dst bytes.Buffer
			r := NewTeeReader(strings.NewReader(input), &dst)

			for {
				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					break
				}
			}

			Expect(dst.String()).To(Equal(input))
		})
	})
})

var _ = Describe("WriteEvent", func() {
	It("frames type and data", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, "completed", "{\"ok\":true}")).To(Succeed())
		Expect(buf.String()).To(Equal("event: completed\ndata: {\"ok\":true}\n\n"))
	})

	It("omits the event line when the type is empty", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, "", "hello")).To(Succeed())
		Expect(buf.String()).To(Equal("data: hello\n\n"))
	})

	It("round-trips multi-line data through the reader", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, "content_updated", "line one\nline two")).To(Succeed())

		r := NewReader(&buf)
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Type).To(Equal("content_updated"))
		Expect(ev.Data).To(Equal("line one\nline two"))
	})
})
