package domain

// NotificationHandle указывает на отправленное сообщение, которое можно отозвать.
type NotificationHandle struct {
	ID       string
	BuyerRef string
}

// Message — содержимое исходящего сообщения.
type Message struct {
	Text string
	// Image — PNG; если задан, Text отправляется подписью к изображению.
	Image         []byte
	ImageFilename string
}
