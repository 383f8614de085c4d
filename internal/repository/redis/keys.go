package redis

import "fmt"

const ns = "cinetix:v1"

func KeySession(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d", ns, sessionID)
}

func KeySessionSeatMap(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d:seatmap", ns, sessionID)
}

func KeyFilmSessions(filmID int64) string {
	return fmt.Sprintf("%s:film:%d:sessions", ns, filmID)
}

func KeyRoomSeats(roomID int64) string {
	return fmt.Sprintf("%s:room:%d:seats", ns, roomID)
}

func KeyIdemHold(sessionID int64, userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:holds:%d:%d:%s", ns, sessionID, userID, idemKey)
}

func ChannelSessionsChanged() string {
	return ns + ":sessions:changed"
}
