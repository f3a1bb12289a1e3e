package events

import (
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
	"github.com/threatdocs/threatdocs-backend/pkg/messaging"
)

// NewTemplateEventPublisher creates a publisher bound to the template
// events exchange. Consumers bind with routing keys like "template.*"
// or "template.match.#".
func NewTemplateEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*messaging.Publisher, error) {
	return messaging.NewPublisher(rmq, messaging.ExchangeTemplateEvents, "template-service", log)
}
