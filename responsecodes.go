package webpay

import "strings"

var responseCodeMessages = map[string]string{
	"0":   "Aprobado.",
	"-1":  "La transacción ha sido rechazada.",
	"-2":  "La transacción ha sido rechazada, por favor intente nuevamente.",
	"-3":  "Ha ocurrido un error al hacer la transacción.",
	"-4":  "La transacción ha sido rechazada.",
	"-5":  "La transacción ha sido rechazada porque la tasa es inválida.",
	"-6":  "Ha alcanzado el límite de transacciones mensuales.",
	"-7":  "Ha alcanzado el límite de transacciones diarias.",
	"-8":  "La transacción ha sido rechazada, el rubro es inválido.",
	"-97": "Ha alcanzado el máximo monto diario de pagos.",
	"-98": "La transacción ha sido rechazada porque ha excedido el máximo monto de pago.",
	"-99": "La transacción ha sido rechazada porque ha excedido la máxima cantidad de pagos diarias.",
}

// ResponseCodeMessage returns the Spanish description of an authorization
// response code, or "" for unknown codes.
func ResponseCodeMessage(code string) string {
	return responseCodeMessages[strings.TrimSpace(code)]
}
