// Package email compone y envía los emails transaccionales (activación de
// cuenta y reset de contraseña).
//
// Flujo de un envío:
//
//	Service.Send(ctx, SendRequest{Kind, To, Activation})
//	  ├─ Select(kind)            -> subject + template + path del link
//	  ├─ TemplateSource.Load     -> HTML crudo (dir, embebido o cacheado)
//	  ├─ Render                  -> reemplazo literal de {{activationCode}} / {{activationUrl}}
//	  └─ Sender.Send             -> sesión SMTP efímera (go-mail)
//
// El kind viaja como parámetro en cada llamada; Service no guarda estado por
// envío y puede usarse desde varias goroutines. Los errores de entrega se
// devuelven al caller (ErrSendFailed) y además se loguean y cuentan en métricas.
package email
