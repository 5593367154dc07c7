package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"gasguard/internal/models"
)

// AlertData 邮件模板数据
type AlertData struct {
	RecipientName     string
	DeviceID          string
	DeviceName        string
	SensorType        string
	SensorName        string
	Kind              models.SensorKind
	Value             float64
	Unit              string
	Severity          models.Severity
	ConsecutiveAlerts int
	DetectedAt        time.Time
}

// sensorCopy 各类传感器的文案与建议措施
type sensorCopy struct {
	Title   string
	Summary string
	Actions []string
}

var copyByKind = map[models.SensorKind]sensorCopy{
	models.KindGas: {
		Title:   "Gas inflamable",
		Summary: "Se detectó una concentración elevada de gas combustible (GLP/propano/butano).",
		Actions: []string{
			"Evacue inmediatamente el área",
			"Ventile el espacio abriendo puertas y ventanas",
			"No encienda luces ni aparatos eléctricos",
			"Cierre la llave de paso del gas si es seguro hacerlo",
			"Contacte a los servicios de emergencia si es necesario",
		},
	},
	models.KindMethane: {
		Title:   "Metano",
		Summary: "Se detectó metano (gas natural) por encima del nivel seguro.",
		Actions: []string{
			"Cierre la llave general del gas natural",
			"Ventile el espacio y evite chispas o llamas abiertas",
			"No use interruptores ni enchufes",
			"Solicite revisión de la instalación a su proveedor de gas",
		},
	},
	models.KindCO: {
		Title:   "Monóxido de carbono",
		Summary: "Se detectó monóxido de carbono, un gas invisible e inodoro que puede ser mortal.",
		Actions: []string{
			"Salga al aire libre de inmediato",
			"Apague calentadores, estufas y motores de combustión",
			"Busque atención médica si hay mareo, dolor de cabeza o náuseas",
			"No regrese hasta que el área esté ventilada y revisada",
		},
	},
	models.KindTemperature: {
		Title:   "Temperatura",
		Summary: "La temperatura está fuera del rango seguro.",
		Actions: []string{
			"Verifique si hay fuentes de calor o fuego cercanas",
			"Revise el funcionamiento de la calefacción o el aire acondicionado",
			"Proteja a personas vulnerables y mascotas",
		},
	},
	models.KindHumidity: {
		Title:   "Humedad",
		Summary: "La humedad relativa está fuera del rango recomendado.",
		Actions: []string{
			"Ventile el espacio o use un deshumidificador",
			"Revise posibles fugas de agua o condensación",
			"Proteja equipos electrónicos sensibles a la humedad",
		},
	},
}

var genericCopy = sensorCopy{
	Title:   "Sensor",
	Summary: "Un sensor reportó lecturas fuera de lo normal.",
	Actions: []string{
		"Revise el área donde está instalado el dispositivo",
		"Verifique que el sensor funcione correctamente",
	},
}

var alertTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <div style="max-width: 600px; margin: 0 auto;">
    <h2 style="color: {{.Color}};">{{.Heading}}</h2>
    <p>Hola {{.RecipientName}},</p>
    <p>{{.Summary}}</p>
    <ul>
      <li><strong>Dispositivo:</strong> {{.DeviceName}} ({{.DeviceID}})</li>
      <li><strong>Sensor:</strong> {{.SensorName}}</li>
      <li><strong>Valor:</strong> {{.Value}} {{.Unit}}</li>
      <li><strong>Nivel:</strong> {{.Level}}</li>
      <li><strong>Alertas consecutivas:</strong> {{.ConsecutiveAlerts}}</li>
      <li><strong>Hora de detección:</strong> {{.DetectedAt}}</li>
    </ul>
    <h3>Acciones recomendadas</h3>
    <ul>
      {{range .Actions}}<li>{{.}}</li>
      {{end}}
    </ul>
    <p style="font-size: 12px; color: #6b7280;">GasGuard · Puede ajustar sus notificaciones en la configuración de su cuenta.</p>
  </div>
</body>
</html>`))

// RenderAlert 根据传感器类别与严重程度生成邮件
func RenderAlert(d AlertData) (Message, error) {
	c, ok := copyByKind[d.Kind]
	if !ok {
		c = genericCopy
	}

	deviceName := d.DeviceName
	if deviceName == "" {
		deviceName = d.DeviceID
	}
	sensorName := d.SensorName
	if sensorName == "" {
		sensorName = d.SensorType
	}

	var subject, heading, color, level string
	switch d.Severity {
	case models.SeverityDanger:
		subject = fmt.Sprintf("🚨 ALERTA CRÍTICA %s - %s", c.Title, deviceName)
		heading = "🚨 Alerta crítica: " + c.Title
		color = "#dc2626"
		level = "Peligro"
	default:
		subject = fmt.Sprintf("⚠️ Alerta %s - %s", c.Title, deviceName)
		heading = "⚠️ Precaución: " + c.Title
		color = "#d97706"
		level = "Precaución"
	}

	value := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", d.Value), "0"), ".")
	detectedAt := d.DetectedAt.Format("2006-01-02 15:04:05 MST")

	var buf bytes.Buffer
	err := alertTemplate.Execute(&buf, map[string]any{
		"Color":             color,
		"Heading":           heading,
		"RecipientName":     d.RecipientName,
		"Summary":           c.Summary,
		"DeviceName":        deviceName,
		"DeviceID":          d.DeviceID,
		"SensorName":        sensorName,
		"Value":             value,
		"Unit":              d.Unit,
		"Level":             level,
		"ConsecutiveAlerts": d.ConsecutiveAlerts,
		"DetectedAt":        detectedAt,
		"Actions":           c.Actions,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render alert email: %w", err)
	}

	text := fmt.Sprintf("%s\nDispositivo: %s (%s)\nSensor: %s\nValor: %s %s\nNivel: %s\nAlertas consecutivas: %d\nHora: %s\n\nAcciones recomendadas:\n- %s\n",
		heading, deviceName, d.DeviceID, sensorName, value, d.Unit, level, d.ConsecutiveAlerts, detectedAt,
		strings.Join(c.Actions, "\n- "))

	return Message{Subject: subject, HTML: buf.String(), Text: text}, nil
}

var testTemplate = template.Must(template.New("test").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background: #f3f4f6; padding: 24px;">
  <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 8px; padding: 24px;">
    <h2 style="color: #059669;">✅ Email de prueba</h2>
    <p>Hola {{.RecipientName}},</p>
    <p>Si está leyendo este mensaje, las notificaciones por email de GasGuard funcionan correctamente.</p>
    <p><strong>Enviado:</strong> {{.SentAt}}</p>
  </div>
</body>
</html>`))

// RenderTestEmail 渠道自检邮件
func RenderTestEmail(to, recipientName string, sentAt time.Time) (Message, error) {
	stamp := sentAt.Format("2006-01-02 15:04:05 MST")
	var buf bytes.Buffer
	if err := testTemplate.Execute(&buf, map[string]any{"RecipientName": recipientName, "SentAt": stamp}); err != nil {
		return Message{}, fmt.Errorf("failed to render test email: %w", err)
	}
	return Message{
		To:      to,
		ToName:  recipientName,
		Subject: "✅ Prueba de notificaciones GasGuard",
		HTML:    buf.String(),
		Text:    fmt.Sprintf("Hola %s,\nLas notificaciones por email de GasGuard funcionan correctamente.\nEnviado: %s\n", recipientName, stamp),
	}, nil
}
