package qr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/skip2/go-qrcode"

	"bus-booking/internal/models"
)

// Generator renders a scannable artifact for a stored ticket. Generation is
// opportunistic: callers save the ticket record whether or not the artifact
// could be produced.
type Generator struct {
	dir string
}

func NewGenerator(dir string) *Generator {
	return &Generator{dir: dir}
}

// Generate writes a PNG encoding the ticket's QR payload and returns its
// path.
func (g *Generator) Generate(ticket models.StoredTicket) (string, error) {
	if ticket.QRData == "" {
		return "", fmt.Errorf("ticket %s has no QR payload", ticket.ID)
	}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	png, err := qrcode.Encode(ticket.QRData, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR: %w", err)
	}

	path := filepath.Join(g.dir, fmt.Sprintf("ticket-%s.png", ticket.ID))
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}
