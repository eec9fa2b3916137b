package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/larachado/coordinator/internal/domain"
)

// Session isolation: concurrent request streams on two distinct session ids
// never interleave transcript entries — each session's transcript contains
// only turns written under its own id.
func TestProperty_SessionIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("two sessions never see each other's turns", prop.ForAll(
		func(turnsPerSession int) bool {
			if turnsPerSession < 1 || turnsPerSession > 30 {
				return true
			}
			s := New(1024)
			var wg sync.WaitGroup
			ids := []string{"session-a", "session-b"}

			for _, id := range ids {
				id := id
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < turnsPerSession; i++ {
						s.WithLock(id, func(sess *Session) {
							sess.Transcript = append(sess.Transcript, domain.Turn{Role: domain.RoleUser, Text: id})
						})
					}
				}()
			}
			wg.Wait()

			ok := true
			for _, id := range ids {
				s.WithLock(id, func(sess *Session) {
					if len(sess.Transcript) != turnsPerSession {
						ok = false
						return
					}
					for _, turn := range sess.Transcript {
						if turn.Text != id {
							ok = false
						}
					}
				})
			}
			return ok
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

// Per-session ordering: serial requests on one session produce a transcript
// with user turns in submission order, each followed immediately by its
// assistant reply.
func TestProperty_PerSessionOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("serial turns preserve request/response order", prop.ForAll(
		func(n int) bool {
			if n < 1 || n > 20 {
				return true
			}
			s := New(1024)
			id := "serial-session"

			for i := 0; i < n; i++ {
				s.WithLock(id, func(sess *Session) {
					sess.Transcript = append(sess.Transcript, domain.Turn{Role: domain.RoleUser, Text: fmt.Sprintf("u%d", i)})
					sess.Transcript = append(sess.Transcript, domain.Turn{Role: domain.RoleAssistant, Text: fmt.Sprintf("a%d", i)})
				})
			}

			var transcript []domain.Turn
			s.WithLock(id, func(sess *Session) { transcript = sess.Transcript })

			if len(transcript) != 2*n {
				return false
			}
			for i := 0; i < n; i++ {
				u := transcript[2*i]
				a := transcript[2*i+1]
				if u.Role != domain.RoleUser || u.Text != fmt.Sprintf("u%d", i) {
					return false
				}
				if a.Role != domain.RoleAssistant || a.Text != fmt.Sprintf("a%d", i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
