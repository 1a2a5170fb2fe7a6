// Package auth decides which Telegram users may talk to the bot.
package auth

import "sort"

type Service struct {
	allowed map[int64]struct{}
}

// NewService builds a whitelist. An empty list lets everyone in.
func NewService(ids []int64) *Service {
	s := &Service{allowed: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.allowed[id] = struct{}{}
	}
	return s
}

func (s *Service) IsAllowed(userID int64) bool {
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[userID]
	return ok
}

// Restricted reports whether the whitelist is in force.
func (s *Service) Restricted() bool {
	return len(s.allowed) > 0
}

func (s *Service) List() []int64 {
	out := make([]int64, 0, len(s.allowed))
	for id := range s.allowed {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
