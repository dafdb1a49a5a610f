package invoice

import (
	"context"

	"payment-service/models"
)

type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Service issues invoices for the reconciliation engine and re-renders them
// for signed links.
type Service struct {
	gen     *Generator
	storage Storage
	signer  *Signer
}

func NewService(gen *Generator, storage Storage, signer *Signer) *Service {
	return &Service{gen: gen, storage: storage, signer: signer}
}

func ObjectKey(order *models.Order) string {
	return "invoices/" + order.OrderNumber + ".html"
}

func (s *Service) Issue(ctx context.Context, order *models.Order) (string, error) {
	doc, err := s.gen.Generate(order)
	if err != nil {
		return "", err
	}
	return s.storage.Upload(ctx, ObjectKey(order), doc, ContentType)
}

func (s *Service) FallbackURL(order *models.Order) (string, error) {
	return s.signer.FallbackURL(order)
}

func (s *Service) Render(order *models.Order) ([]byte, error) {
	return s.gen.Generate(order)
}

func (s *Service) VerifyLink(token string) (*LinkClaims, error) {
	return s.signer.Verify(token)
}
