package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/menumaster-admin/internal/common"
	"github.com/noah-isme/menumaster-admin/internal/obs"
)

// Handler serves POST /fraud/flag.
type Handler struct {
	Classifier Classifier
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

// Flag assesses the submitted account evidence.
func (h Handler) Flag(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	v := h.Validator
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(in); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "kycInfo and transactionHistory are required", map[string]any{"fields": fields})
		return
	}
	if h.Classifier == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "FRAUD_DISABLED", "fraud classifier is not configured", nil)
		return
	}

	verdict, err := h.Classifier.Classify(r.Context(), in)
	if err != nil {
		obs.ObserveFraudCheck("error")
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.Logger.Warn().Err(err).Msg("fraud classification failed")
		common.JSONError(w, status, "CLASSIFIER_UNAVAILABLE", "fraud assessment failed, try again", nil)
		return
	}
	result := "clean"
	if verdict.IsFraudulent {
		result = "flagged"
	}
	obs.ObserveFraudCheck(result)
	userID, _ := common.UserID(r.Context())
	h.Logger.Info().Str("actor_id", userID).Bool("fraudulent", verdict.IsFraudulent).Msg("fraud assessment")
	common.JSON(w, http.StatusOK, map[string]any{"data": verdict})
}
