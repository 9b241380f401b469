package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/cards"
)

// ReplySeparator joins a user's body and the generated reply inside one stored card body.
const ReplySeparator = "\n\n---\n🤖 Respuesta de IA: "

var (
	// ErrEmptyReply reports a completion without text.
	ErrEmptyReply = errors.New("assistant: empty reply")
	// ErrNotConfigured reports that no API key is available.
	ErrNotConfigured = errors.New("assistant: not configured")
)

// Prompt carries the user content the reply should complement.
type Prompt struct {
	Author string
	Title  string
	Body   string
}

// Generator produces a short reply that complements a post.
type Generator interface {
	GenerateReply(ctx context.Context, prompt Prompt) (string, error)
}

// MinReplyLength is the shortest reply, in runes, worth generating. Bodies that leave less
// room than this under the card body limit are rejected before the provider is called.
const MinReplyLength = 40

// ReplyBudget returns how many runes of reply still fit behind body and ReplySeparator.
func ReplyBudget(body string) int {
	budget := cards.MaxCardBodyLength - utf8.RuneCountInString(body) - utf8.RuneCountInString(ReplySeparator)
	if budget < 0 {
		return 0
	}
	return budget
}

// ComposeBody appends the reply behind ReplySeparator and returns the combined body along
// with the reply as stored. The reply is cut so the combined body fits the card body limit;
// the user's own text is never cut. An empty stored reply means nothing was appended.
func ComposeBody(body, reply string) (string, string) {
	reply = strings.TrimSpace(reply)
	budget := ReplyBudget(body)
	if reply == "" || budget == 0 {
		return body, ""
	}
	if utf8.RuneCountInString(reply) > budget {
		reply = strings.TrimSpace(string([]rune(reply)[:budget]))
	}
	return body + ReplySeparator + reply, reply
}

func userMessage(prompt Prompt) string {
	author := strings.TrimSpace(prompt.Author)
	if author == "" {
		author = cards.DefaultAuthor
	}
	return fmt.Sprintf("Usuario: %s\nTítulo: %s\nContenido: %s\n\nPor favor, genera una respuesta o complemento apropiado para este contenido en Atlacatl.net.",
		author, strings.TrimSpace(prompt.Title), strings.TrimSpace(prompt.Body))
}

const systemInstruction = `Eres un asistente de IA integrado en Atlacatl.net, la primera red social salvadoreña. Tu función es generar respuestas concisas y contextualmente relevantes basadas en las solicitudes de los usuarios, adecuadas para compartir en la plataforma.

IMPORTANTE: Cuando un usuario te proporcione contenido (autor, título, y cuerpo de mensaje), debes generar una respuesta que complemente o mejore ese contenido, manteniendo el contexto y el tono apropiado para Atlacatl.net.

Contexto sobre Atlacatl.net:
Atlacatl es la primera red social salvadoreña, creada por salvadoreños para salvadoreños. Es una plataforma que permite compartir ideas e información de manera anónima o no anónima, con integración de IA para mejorar la experiencia del usuario.

Identidad de Atlacatl:
- Promovemos igualdad, empatía mutua, neutralidad política y valor de la innovación tecnológica
- Nos fundamentamos en creatividad, empatía, libertad de expresión, innovación y proyección social
- Apoyamos a la comunidad salvadoreña y latinoamericana

Instrucciones de respuesta:
1. Siempre responde en el idioma del usuario (principalmente español)
2. Mantén respuestas breves: máximo un párrafo o 4 oraciones
3. Sé directo y útil
4. Complementa el contenido del usuario sin repetirlo exactamente
5. Mantén un tono apropiado para redes sociales
6. Si el contenido es inapropiado, responde educadamente que no puedes asistir con eso

Habla en primera persona como asistente.`
