package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages persisted (AI replies included)",
		},
	)

	chatConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_conversations_created_total",
			Help: "Total number of conversations created",
		},
		[]string{"kind"}, // direct, group
	)

	chatAIJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ai_jobs_total",
			Help: "AI responder jobs by result",
		},
		[]string{"result"}, // replied, failed, dropped, refused
	)
)
