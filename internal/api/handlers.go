package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-supportchat/internal/auth"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/support"
	"github.com/npezzotti/go-supportchat/internal/types"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	IsStaff  bool   `json:"is_staff"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

type MarkReadResponse struct {
	MarkedRead int `json:"marked_read"`
}

// StaffStatusRequest leaves a flag unchanged when it is omitted.
type StaffStatusRequest struct {
	IsOnline    *bool `json:"is_online"`
	IsAvailable *bool `json:"is_available"`
}

func (s *SupportChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *SupportChatApp) writeError(w http.ResponseWriter, err error) {
	errResp := errorResponse(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println("request failed:", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decodeJson accepts an empty body as the zero value.
func decodeJson(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func hashPassword(passwd string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(hash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd)) == nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     auth.TokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func toRoom(r database.Room) types.Room {
	room := types.Room{
		Id:         r.Id,
		RoomId:     r.RoomId,
		Name:       r.Name,
		CustomerId: r.CustomerId,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Assigned() {
		staffId := r.SupportStaffId
		room.SupportStaffId = &staffId
	}
	return room
}

func toMessage(m database.Message, roomId string) types.Message {
	return types.Message{
		Id:        m.Id,
		SeqId:     m.SeqId,
		RoomId:    roomId,
		SenderId:  m.SenderId,
		Message:   m.Content,
		IsRead:    m.IsRead,
		Timestamp: m.CreatedAt,
	}
}

func toStaffProfile(p database.StaffProfile) types.StaffProfile {
	return types.StaffProfile{
		UserId:             p.UserId,
		Username:           p.Username,
		IsOnline:           p.IsOnline,
		IsAvailable:        p.IsAvailable,
		MaxConcurrentChats: p.MaxConcurrentChats,
		CurrentChatCount:   p.CurrentChatCount,
		CanTakeNewChat:     p.CanTakeNewChat(),
		LastActivity:       p.LastActivity,
	}
}

func (s *SupportChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Println("health check:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *SupportChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	account, err := s.db.CreateAccount(r.Context(), database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: strings.ToLower(req.Email),
		PasswordHash: pwdHash,
		IsStaff:      req.IsStaff,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	user, err := s.verifier.Resolve(r.Context(), account.Id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, user)
}

func (s *SupportChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(r.Context(), strings.ToLower(lr.Email))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			err = auth.ErrUnauthorized
		}
		s.writeError(w, err)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	user, err := s.verifier.Resolve(r.Context(), account.Id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	token, err := s.verifier.IssueToken(user.Id, auth.DefaultExpiration)
	if err != nil {
		s.writeError(w, err)
		return
	}

	http.SetCookie(w, createJwtCookie(token, auth.DefaultExpiration))
	s.writeJson(w, http.StatusOK, LoginResponse{User: user, Token: token})
}

func (s *SupportChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// overwrite the cookie with an expired one
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *SupportChatApp) session(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}

func (s *SupportChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	var req CreateRoomRequest
	if err := decodeJson(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.svc.Rooms.CreateRoom(r.Context(), user, strings.TrimSpace(req.Name))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, toRoom(room))
}

func (s *SupportChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	dbRooms, err := s.svc.Rooms.ListRoomsFor(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, toRoom(room))
	}

	s.writeJson(w, http.StatusOK, rooms)
}

// authorizedRoom resolves the {room_id} path value for the caller, writing
// the error response itself when it fails.
func (s *SupportChatApp) authorizedRoom(w http.ResponseWriter, r *http.Request) (types.User, database.Room, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return types.User{}, database.Room{}, false
	}

	room, err := s.svc.Rooms.AuthorizedRoom(r.Context(), user, r.PathValue("room_id"))
	if err != nil {
		s.writeError(w, err)
		return types.User{}, database.Room{}, false
	}

	return user, room, true
}

func (s *SupportChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	_, room, ok := s.authorizedRoom(w, r)
	if !ok {
		return
	}

	history, err := s.svc.Messages.History(r.Context(), room)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := toRoom(room)
	resp.Messages = make([]types.Message, 0, len(history))
	for _, m := range history {
		resp.Messages = append(resp.Messages, toMessage(m, room.RoomId))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *SupportChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	user, room, ok := s.authorizedRoom(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.SubmitMessage(r.Context(), room, user, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, toMessage(msg, room.RoomId))
}

func (s *SupportChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	user, room, ok := s.authorizedRoom(w, r)
	if !ok {
		return
	}

	n, err := s.svc.Messages.MarkRead(r.Context(), room, user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, MarkReadResponse{MarkedRead: n})
}

func (s *SupportChatApp) closeRoom(w http.ResponseWriter, r *http.Request) {
	_, room, ok := s.authorizedRoom(w, r)
	if !ok {
		return
	}

	closed, err := s.svc.Rooms.Close(r.Context(), room)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, toRoom(closed))
}

// assignRoom does not go through authorizedRoom: a staff member losing the
// assignment must see AlreadyAssigned, not Forbidden.
func (s *SupportChatApp) assignRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	if !user.IsStaff() {
		s.writeError(w, support.ErrNotStaff)
		return
	}

	room, err := s.svc.Rooms.GetRoom(r.Context(), r.PathValue("room_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	assigned, err := s.svc.Rooms.AssignStaff(r.Context(), room, user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, toRoom(assigned))
}

func (s *SupportChatApp) listStaff(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.svc.Staff.ListAvailable(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	staff := make([]types.StaffProfile, 0, len(profiles))
	for _, p := range profiles {
		staff = append(staff, toStaffProfile(p))
	}

	s.writeJson(w, http.StatusOK, staff)
}

func (s *SupportChatApp) staffProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	p, err := s.svc.Staff.Profile(r.Context(), user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, toStaffProfile(p))
}

func (s *SupportChatApp) setStaffStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		s.writeError(w, auth.ErrUnauthorized)
		return
	}

	var req StaffStatusRequest
	if err := decodeJson(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	p, err := s.svc.Staff.SetStatus(r.Context(), user, req.IsOnline, req.IsAvailable)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, toStaffProfile(p))
}

// serveWs refuses with a bare status code before upgrading; nothing is
// broadcast for a refused connection. A staff member joining an unassigned
// room takes the assignment, and losing that race is a refusal. Closed rooms
// are never auto-assigned.
func (s *SupportChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	user, err := s.verifier.Verify(r.Context(), auth.CredentialFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			w.WriteHeader(http.StatusUnauthorized)
		} else {
			s.log.Println("verify credential:", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	room, err := s.svc.Rooms.AuthorizedRoom(r.Context(), user, r.PathValue("room_id"))
	if err == nil && user.IsStaff() && room.IsActive && !room.Assigned() {
		room, err = s.svc.Rooms.AssignStaff(r.Context(), room, user)
		if errors.Is(err, support.ErrAlreadyAssigned) {
			err = support.ErrForbidden
		}
	}
	if err != nil {
		w.WriteHeader(errorResponse(err).StatusCode)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, s.log)
	if err := s.cs.JoinRoom(r.Context(), client, room); err != nil {
		s.log.Println("join room:", err)
		client.Close()
		return
	}

	go client.Write()
	go client.Read()
}
