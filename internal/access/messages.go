package access

import (
	"context"
	"errors"
	"strings"

	"spendly/internal/core"
	"spendly/internal/docstore"
	"spendly/internal/identity"
)

// Domain groups operations that share a code-to-message mapping.
type Domain string

const (
	DomainAny           Domain = ""
	DomainTransactions  Domain = "transactions"
	DomainSavings       Domain = "savings"
	DomainCategories    Domain = "categories"
	DomainUsernames     Domain = "usernames"
	DomainProfile       Domain = "profile"
	DomainSignUp        Domain = "sign-up"
	DomainSignIn        Domain = "sign-in"
	DomainPasswordReset Domain = "password-reset"
	DomainConfirmReset  Domain = "confirm-reset"
	DomainAccount       Domain = "account"
)

// operation names the fallback message shown when no code-specific message
// exists for its domain.
type operation struct {
	domain   Domain
	fallback string
}

var (
	opCreateTransaction     = operation{DomainTransactions, "Error al crear la transacción"}
	opListTransactions      = operation{DomainTransactions, "Error al obtener las transacciones"}
	opListByType            = operation{DomainTransactions, "Error al obtener las transacciones por tipo"}
	opListByCategory        = operation{DomainTransactions, "Error al obtener las transacciones por categoría"}
	opGetTransaction        = operation{DomainTransactions, "Error al obtener la transacción"}
	opUpdateTransaction     = operation{DomainTransactions, "Error al actualizar la transacción"}
	opDeleteTransaction     = operation{DomainTransactions, "Error al eliminar la transacción"}
	opSummaryTransactions   = operation{DomainTransactions, "Error al obtener el resumen de transacciones"}
	opBackfillCurrency      = operation{DomainTransactions, "Error al asignar la moneda a las transacciones"}
	opSubscribeTransactions = operation{DomainTransactions, "Error al escuchar cambios en las transacciones"}

	opCreateSaving     = operation{DomainSavings, "Error al agregar ahorro"}
	opListSavings      = operation{DomainSavings, "Error al obtener ahorros"}
	opGetSaving        = operation{DomainSavings, "Error al obtener el ahorro"}
	opUpdateSaving     = operation{DomainSavings, "Error al actualizar el ahorro"}
	opDeleteSaving     = operation{DomainSavings, "Error al eliminar el ahorro"}
	opSummarySavings   = operation{DomainSavings, "Error al obtener el resumen de ahorros"}
	opGetGoal          = operation{DomainSavings, "Error al obtener la meta anual"}
	opSetGoal          = operation{DomainSavings, "Error al guardar la meta anual"}
	opSubscribeSavings = operation{DomainSavings, "Error al escuchar cambios en los ahorros"}

	opGetCategories  = operation{DomainCategories, "Error al cargar las categorías"}
	opSaveCategories = operation{DomainCategories, "Error al guardar las categorías"}

	opCheckUsername    = operation{DomainUsernames, "Error al verificar el username"}
	opRegisterUsername = operation{DomainUsernames, "Error al registrar el username"}
	opUpdateUsername   = operation{DomainUsernames, "Error al actualizar el username"}
	opDeleteUsername   = operation{DomainUsernames, "Error al eliminar el username"}
	opLookupUsername   = operation{DomainUsernames, "Error al buscar el usuario"}

	opSaveProfile = operation{DomainProfile, "Error al guardar el perfil"}
	opPublicInfo  = operation{DomainProfile, "Error al obtener el perfil"}
	opUploadPhoto = operation{DomainProfile, "Error al subir la foto de perfil"}

	opSignUp           = operation{DomainSignUp, "Error al crear la cuenta. Intenta nuevamente"}
	opSignIn           = operation{DomainSignIn, "Error al iniciar sesión. Verifica tus credenciales"}
	opPasswordReset    = operation{DomainPasswordReset, "Error al enviar el correo de recuperación"}
	opConfirmReset     = operation{DomainConfirmReset, "Error al restablecer la contraseña"}
	opSignOut          = operation{DomainAccount, "Error al cerrar sesión"}
	opCurrentUser      = operation{DomainAccount, "Error al obtener el usuario"}
	opUpdateProfile    = operation{DomainAccount, "Error al actualizar el perfil"}
	opUpdateEmail      = operation{DomainAccount, "Error al actualizar el correo electrónico"}
	opUpdatePassword   = operation{DomainAccount, "Error al actualizar la contraseña"}
	opReauthenticate   = operation{DomainAccount, "Error al verificar la contraseña"}
	opDeleteAccount    = operation{DomainAccount, "Error al eliminar la cuenta"}
	opSendVerification = operation{DomainAccount, "Error al enviar el correo de verificación"}
	opVerifyEmail      = operation{DomainAccount, "Error al verificar el correo electrónico"}
)

// Messages raised by the access layer itself.
const (
	msgUnauthenticated     = "Usuario no autenticado"
	msgTransactionNotFound = "Transacción no encontrada"
	msgTransactionDenied   = "No tienes permisos para acceder a esta transacción"
	msgSavingNotFound      = "Ahorro no encontrado"
	msgSavingDenied        = "No tienes permisos para acceder a este ahorro"
	msgInvalidUsername     = "Formato de username inválido"
	msgUsernameTaken       = "Username no disponible"
	msgUsernameNotOwned    = "El username no pertenece a este usuario"
	msgUserNotFound        = "Usuario no encontrado"
	msgPhotoMissing        = "Selecciona una imagen para subir"
	msgPhotoTimeout        = "La subida de la foto tardó demasiado. Intenta nuevamente"
)

type messageKey struct {
	domain Domain
	code   string
}

// messages maps (domain, provider code) to the text shown to the user.
// Lookups fall back to DomainAny, then to the provider's message, then to
// the operation's fallback.
var messages = map[messageKey]string{
	{DomainSignUp, identity.CodeEmailAlreadyInUse}: "Este correo electrónico ya está registrado. Intenta iniciar sesión o usa otro correo",
	{DomainSignUp, "auth/operation-not-allowed"}:   "El registro con correo y contraseña no está habilitado",
	{DomainSignUp, identity.CodeWeakPassword}:      "La contraseña es muy débil. Debe tener al menos 6 caracteres",

	{DomainSignIn, identity.CodeUserNotFound}:      "Correo o contraseña incorrectos",
	{DomainSignIn, identity.CodeWrongPassword}:     "Correo o contraseña incorrectos",
	{DomainSignIn, identity.CodeInvalidCredential}: "Correo o contraseña incorrectos",

	{DomainPasswordReset, identity.CodeUserNotFound}:    "No existe una cuenta con este correo electrónico",
	{DomainPasswordReset, identity.CodeTooManyRequests}: "Demasiados intentos. Intenta más tarde",

	{DomainConfirmReset, identity.CodeExpiredActionCode}: "El código de recuperación ha expirado. Solicita uno nuevo",
	{DomainConfirmReset, identity.CodeInvalidActionCode}: "El código de recuperación no es válido",
	{DomainConfirmReset, identity.CodeWeakPassword}:      "La contraseña es muy débil. Debe tener al menos 6 caracteres",
	{DomainConfirmReset, identity.CodeUserNotFound}:      "No se encontró la cuenta asociada",

	{DomainAccount, identity.CodeEmailAlreadyInUse}:   "Este correo electrónico ya está registrado",
	{DomainAccount, identity.CodeWeakPassword}:        "La contraseña es muy débil. Debe tener al menos 6 caracteres",
	{DomainAccount, identity.CodeWrongPassword}:       "La contraseña actual es incorrecta",
	{DomainAccount, identity.CodeInvalidActionCode}:   "El enlace de verificación no es válido",
	{DomainAccount, identity.CodeExpiredActionCode}:   "El enlace de verificación ha expirado. Solicita uno nuevo",
	{DomainAccount, identity.CodeRequiresRecentLogin}: "Por seguridad, vuelve a iniciar sesión para completar esta acción",

	{DomainUsernames, string(docstore.CodePermissionDenied)}: "Las reglas de acceso necesitan ser actualizadas. Contacta al administrador",

	{DomainAny, identity.CodeInvalidEmail}:             "El formato del correo electrónico no es válido",
	{DomainAny, identity.CodeUserDisabled}:             "Esta cuenta ha sido deshabilitada",
	{DomainAny, identity.CodeTooManyRequests}:          "Demasiados intentos fallidos. Intenta más tarde",
	{DomainAny, identity.CodeNetworkRequestFail}:       "Error de conexión. Verifica tu internet e intenta nuevamente",
	{DomainAny, identity.CodeIDTokenExpired}:           "Tu sesión ha expirado. Inicia sesión nuevamente",
	{DomainAny, identity.CodeUserTokenExpired}:         "Tu sesión ha expirado. Inicia sesión nuevamente",
	{DomainAny, identity.CodeInvalidCredential}:        "Tu sesión no es válida. Inicia sesión nuevamente",
	{DomainAny, string(docstore.CodePermissionDenied)}: "No tienes permisos para realizar esta operación",
	{DomainAny, string(docstore.CodeUnavailable)}:      "El servicio no está disponible. Intenta nuevamente",
}

var codeKinds = map[string]error{
	string(docstore.CodeNotFound):         core.ErrNotFound,
	string(docstore.CodePermissionDenied): core.ErrForbidden,
	string(docstore.CodeUnavailable):      core.ErrUnavailable,
	string(docstore.CodeAlreadyExists):    core.ErrConflict,
	string(docstore.CodeInvalidArgument):  core.ErrValidation,

	identity.CodeEmailAlreadyInUse:   core.ErrConflict,
	identity.CodeInvalidEmail:        core.ErrValidation,
	identity.CodeWeakPassword:        core.ErrValidation,
	identity.CodeExpiredActionCode:   core.ErrValidation,
	identity.CodeInvalidActionCode:   core.ErrValidation,
	identity.CodeUserNotFound:        core.ErrNotFound,
	identity.CodeWrongPassword:       core.ErrUnauthenticated,
	identity.CodeInvalidCredential:   core.ErrUnauthenticated,
	identity.CodeRequiresRecentLogin: core.ErrUnauthenticated,
	identity.CodeIDTokenExpired:      core.ErrUnauthenticated,
	identity.CodeUserTokenExpired:    core.ErrUnauthenticated,
	identity.CodeUserDisabled:        core.ErrForbidden,
	identity.CodeTooManyRequests:     core.ErrRateLimited,
	identity.CodeNetworkRequestFail:  core.ErrUnavailable,
	"auth/operation-not-allowed":     core.ErrForbidden,
}

// Message returns the user-facing text for a provider code in domain.
func Message(domain Domain, code, fallback string) string {
	if msg, ok := messages[messageKey{domain, code}]; ok {
		return msg
	}
	if msg, ok := messages[messageKey{DomainAny, code}]; ok {
		return msg
	}
	return fallback
}

// translate turns a provider error into an *core.AppError. Errors that are
// already AppErrors pass through unchanged.
func translate(op operation, err error) error {
	if err == nil {
		return nil
	}
	var appErr *core.AppError
	if errors.As(err, &appErr) {
		return err
	}
	code := providerCode(err)
	kind := codeKinds[code]
	if kind == nil && errors.Is(err, context.DeadlineExceeded) {
		kind = core.ErrTimeout
	}
	return &core.AppError{
		Kind:    kind,
		Code:    code,
		Message: Message(op.domain, code, providerMessage(err, op.fallback)),
		Err:     err,
	}
}

// providerMessage is the identity provider's own text for codes the table
// does not cover. Internal failures keep the operation's fallback.
func providerMessage(err error, fallback string) string {
	var idErr *identity.Error
	if !errors.As(err, &idErr) || idErr.Code == identity.CodeInternal {
		return fallback
	}
	if msg := strings.TrimSpace(idErr.Message); msg != "" {
		return msg
	}
	return fallback
}

func providerCode(err error) string {
	if code := identity.CodeOf(err); code != "" {
		return code
	}
	return string(docstore.CodeOf(err))
}
