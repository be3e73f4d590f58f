package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/answer"
	"github.com/fyrsmithlabs/docchatd/internal/metadata"
)

// maxSourceChunkLen caps chunk text echoed back in answer sources.
const maxSourceChunkLen = 500

// noAnswerFallback is returned when retrieval finds nothing to ground
// an answer on.
const noAnswerFallback = "I couldn't find relevant information in the specified documents to answer your question."

// handleAsk answers a question over selected documents and saves the
// exchange to chat history.
func (s *Server) handleAsk(c echo.Context) error {
	return s.answerQuestion(c, false, true)
}

// handleAskQuick answers over all of the tenant's documents without
// saving history.
func (s *Server) handleAskQuick(c echo.Context) error {
	return s.answerQuestion(c, true, false)
}

func (s *Server) answerQuestion(c echo.Context, allDocuments, saveHistory bool) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	if s.generator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "answer generation is not configured")
	}

	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if allDocuments {
		req.DocumentIDs = nil
	}

	// Scoped questions require every named document to exist, belong to
	// the tenant, and be fully processed.
	if len(req.DocumentIDs) > 0 {
		var notReady []string
		for _, id := range req.DocumentIDs {
			doc, err := s.documents.Get(ctx, tenantID, id)
			if errors.Is(err, metadata.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "One or more documents not found")
			}
			if err != nil {
				return fmt.Errorf("loading document %s: %w", id, err)
			}
			if !doc.Searchable() {
				notReady = append(notReady, doc.Name)
			}
		}
		if len(notReady) > 0 {
			return echo.NewHTTPError(http.StatusBadRequest,
				"The following documents are not ready: "+strings.Join(notReady, ", "))
		}
	}

	chunks, err := s.retriever.Retrieve(ctx, tenantID, req.Question, req.DocumentIDs)
	if err != nil {
		return c.JSON(http.StatusOK, APIResponse{
			Success: false,
			Message: "Failed to answer question",
			Error:   err.Error(),
		})
	}

	if len(chunks) == 0 {
		return c.JSON(http.StatusOK, APIResponse{
			Success: true,
			Message: "No relevant information found",
			Data: AnswerResult{
				Answer:   noAnswerFallback,
				Sources:  []SourceChunk{},
				Question: req.Question,
			},
		})
	}

	contextChunks := make([]answer.ContextChunk, len(chunks))
	sources := make([]SourceChunk, len(chunks))
	for i, chunk := range chunks {
		contextChunks[i] = answer.ContextChunk{
			DocumentName: chunk.DocumentName,
			Text:         chunk.Text,
		}
		sources[i] = SourceChunk{
			DocumentID:   chunk.DocumentID,
			DocumentName: chunk.DocumentName,
			ChunkText:    truncateChunk(chunk.Text),
			Score:        chunk.Score,
		}
	}

	answerText, err := s.generator.Generate(ctx, req.Question, contextChunks)
	if err != nil {
		return c.JSON(http.StatusOK, APIResponse{
			Success: false,
			Message: "Failed to answer question",
			Error:   err.Error(),
		})
	}

	if saveHistory {
		s.saveChat(ctx, tenantID, req.Question, answerText, req.DocumentIDs)
	}

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Question answered successfully",
		Data: AnswerResult{
			Answer:   answerText,
			Sources:  sources,
			Question: req.Question,
		},
	})
}

// truncateChunk shortens source text to a preview. Truncation is by
// rune so multibyte text never splits mid-character.
func truncateChunk(text string) string {
	runes := []rune(text)
	if len(runes) <= maxSourceChunkLen {
		return text
	}
	return string(runes[:maxSourceChunkLen]) + "..."
}

// saveChat records the exchange, best-effort. History is a convenience;
// the answer already succeeded.
func (s *Server) saveChat(ctx context.Context, tenantID, question, answerText string, documentIDs []string) {
	msg := &metadata.ChatMessage{
		TenantID:    tenantID,
		Question:    question,
		Answer:      answerText,
		DocumentIDs: documentIDs,
	}
	if err := s.chat.SaveChatMessage(ctx, msg); err != nil {
		s.logger.Warn(ctx, "failed to save chat message", zap.Error(err))
	}
}

// handleChatHistory returns the tenant's newest exchanges.
func (s *Server) handleChatHistory(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := s.tenantID(c)
	if err != nil {
		return err
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	msgs, err := s.chat.ListChatMessages(ctx, tenantID, limit)
	if err != nil {
		return fmt.Errorf("listing chat history: %w", err)
	}

	infos := make([]ChatMessageInfo, len(msgs))
	for i, msg := range msgs {
		infos[i] = ChatMessageInfo{
			ID:          msg.ID,
			Question:    msg.Question,
			Answer:      msg.Answer,
			DocumentIDs: msg.DocumentIDs,
			CreatedAt:   msg.CreatedAt,
		}
	}
	return c.JSON(http.StatusOK, ChatHistoryResponse{Messages: infos, TotalCount: len(infos)})
}
