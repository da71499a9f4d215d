package server

import (
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/menta2k/thread-gauge/pkg/types"
)

// Message ids of user facing errors
const (
	msgMissingFile        = "MissingFile"
	msgMissingOrientation = "MissingOrientation"
	msgBadOrientation     = "BadOrientation"
	msgUploadTooLarge     = "UploadTooLarge"
	msgUnexpected         = "Unexpected"
	msgTimeout            = "Timeout"
)

var english = []*i18n.Message{
	{ID: msgMissingFile, Other: "Please select a photo."},
	{ID: msgMissingOrientation, Other: "Tell us whether the thread is internal or external."},
	{ID: msgBadOrientation, Other: "Unknown thread orientation {{.Value}}."},
	{ID: msgUploadTooLarge, Other: "The photo is larger than {{.Limit}} MB."},
	{ID: msgUnexpected, Other: "Unexpected error: {{.Error}}"},
	{ID: msgTimeout, Other: "The analysis took too long, please try again."},
	{ID: string(types.ReasonInvalidImage), Other: "The file is not a readable image."},
	{ID: string(types.ReasonDetectionIncomplete), Other: "Could not identify the thread or the card."},
	{ID: string(types.ReasonCalibrationFailed), Other: "The card could not be measured."},
	{ID: string(types.ReasonNoStandardMatch), Other: "The measurement does not match any known standard."},
}

var portuguese = []*i18n.Message{
	{ID: msgMissingFile, Other: "Por favor, selecione uma foto."},
	{ID: msgMissingOrientation, Other: "Informe se a rosca é interna ou externa."},
	{ID: msgBadOrientation, Other: "Tipo de rosca desconhecido {{.Value}}."},
	{ID: msgUploadTooLarge, Other: "A foto é maior que {{.Limit}} MB."},
	{ID: msgUnexpected, Other: "Erro inesperado: {{.Error}}"},
	{ID: msgTimeout, Other: "A análise demorou demais, tente novamente."},
	{ID: string(types.ReasonInvalidImage), Other: "O arquivo não é uma imagem válida."},
	{ID: string(types.ReasonDetectionIncomplete), Other: "Não foi possível identificar a rosca/cartão."},
	{ID: string(types.ReasonCalibrationFailed), Other: "Não foi possível medir o cartão."},
	{ID: string(types.ReasonNoStandardMatch), Other: "Medida não corresponde a norma conhecida."},
}

func newBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.English)
	b.AddMessages(language.English, english...)
	b.AddMessages(language.Portuguese, portuguese...)
	return b
}

// translate localizes id for the Accept-Language header, falling back to English
func (s *Server) translate(acceptLanguage, id string, data map[string]interface{}) string {
	loc := i18n.NewLocalizer(s.bundle, acceptLanguage)
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return msg
}
