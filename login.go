package motor

import (
	"crypto/md5"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/shykaruu/motor/chat"
	"github.com/shykaruu/motor/crypt"
	"github.com/shykaruu/motor/jobs"
	"github.com/shykaruu/motor/mcproto"
	"github.com/shykaruu/motor/players"
	"github.com/shykaruu/motor/session"
)

// loginHandler processes one packet body for the current login state.
type loginHandler func(w jobs.Worker, c *Client, body []byte) error

// Reasons shown to clients.
var (
	reasonVerifyFailed = chat.Text("Failed RSA Challenge")
	reasonAuthFailed   = chat.Text("Authentication failed")
)

func (rt *Runtime) buildLoginHandlers() map[LoginState]map[int32]loginHandler {
	return map[LoginState]map[int32]loginHandler{
		LoginAwaitingStart: {
			mcproto.LoginStartID: rt.handleLoginStart,
		},
		LoginAwaitingEncryption: {
			mcproto.EncryptionResponseID: rt.handleEncryptionResponse,
		},
	}
}

func (rt *Runtime) handleLogin(w jobs.Worker, c *Client, p mcproto.Packet) error {
	h := rt.login[c.LoginState()][p.ID]
	if h == nil {
		return fmt.Errorf("%w: login %s packet 0x%02x", ErrUnexpectedPacket, c.LoginState(), p.ID)
	}
	return h(w, c, p.Data)
}

func (rt *Runtime) handleLoginStart(w jobs.Worker, c *Client, body []byte) error {
	ls, err := mcproto.DecodeLoginStart(body)
	if err != nil {
		return err
	}
	c.Username = ls.Username

	if c.Protocol != rt.opt.Protocol {
		if c.Protocol < rt.opt.Protocol {
			return disconnect(chat.Translate(chat.KeyOutdatedClient, rt.opt.VersionName), ErrOutdatedClient)
		}
		return disconnect(chat.Translate(chat.KeyOutdatedServer, rt.opt.VersionName), ErrOutdatedServer)
	}

	token, err := crypt.NewVerifyToken()
	if err != nil {
		return err
	}
	c.verifyToken = token

	serverID := "-"
	if rt.opt.OnlineMode {
		serverID = ""
	}
	err = c.Send(mcproto.EncryptionRequest{
		ServerID:    serverID,
		PublicKey:   rt.keys.PublicDER(),
		VerifyToken: crypt.TokenBytes(token),
	})
	if err != nil {
		return err
	}
	return c.login.TransitionTo(LoginAwaitingEncryption)
}

func (rt *Runtime) handleEncryptionResponse(w jobs.Worker, c *Client, body []byte) error {
	resp, err := mcproto.DecodeEncryptionResponse(body, MaxEncryptedLength)
	if err != nil {
		return err
	}

	pt, err := rt.keys.Decrypt(resp.Secret)
	if err != nil {
		return err
	}
	if len(pt) < crypt.SecretLen {
		return ErrShortSecret
	}
	secret := crypt.Reverse(pt, crypt.SecretLen)

	streams, err := crypt.NewStreams(secret)
	if err != nil {
		c.log.WithError(err).Error("cipher init")
		return err
	}
	c.enableEncryption(streams)

	tokenPT, err := rt.keys.Decrypt(resp.Token)
	if err != nil {
		return disconnect(reasonVerifyFailed, errors.Join(ErrVerifyMismatch, err))
	}
	if got, ok := crypt.TokenFromDecrypted(tokenPT); !ok || got != c.verifyToken {
		return disconnect(reasonVerifyFailed, ErrVerifyMismatch)
	}

	if !rt.opt.OnlineMode {
		c.UUID = OfflineUUID(c.Username)
		if err := c.login.TransitionTo(LoginReady); err != nil {
			return err
		}
		return rt.ready(w, c, false)
	}

	c.secret = secret
	if err := c.login.TransitionTo(LoginAuthenticating); err != nil {
		return err
	}
	return rt.authenticate(w, c)
}

// authenticate blocks this worker on the session server. No world lock is
// held here.
func (rt *Runtime) authenticate(w jobs.Worker, c *Client) error {
	hash := crypt.ServerHash("", c.secret, rt.keys.PublicDER())
	c.secret = nil

	start := time.Now()
	prof, err := rt.auth.HasJoined(rt.ctx, c.Username, hash)
	rt.metrics.authDuration.Observe(time.Since(start).Seconds())

	var se session.StatusError
	switch {
	case err == nil:
	case errors.As(err, &se):
		return disconnect(reasonAuthFailed, fmt.Errorf("%w: %v", ErrAuthRejected, err))
	case errors.Is(err, session.ErrCorruptResponse):
		c.log.WithError(err).Error("session response")
		return err
	default:
		c.log.WithError(err).Warn("session request")
		return err
	}

	if prof.Name != c.Username {
		c.log.WithField("verified", prof.Name).Debug("username replaced by session profile")
		c.Username = prof.Name
	}
	c.UUID = prof.ID
	c.Textures = prof.Textures
	if err := c.login.TransitionTo(LoginReady); err != nil {
		return err
	}
	return rt.ready(w, c, true)
}

// ready completes the login and hands the client to the play handler.
func (rt *Runtime) ready(w jobs.Worker, c *Client, verified bool) error {
	err := c.Send(mcproto.LoginSuccess{UUID: c.UUID, Username: c.Username})
	if err != nil {
		return err
	}
	c.setProto(ProtoPlay)
	rt.metrics.logins.WithLabelValues(loginSuccess).Inc()
	rt.metrics.online.Inc()
	c.log.WithFields(log.Fields{"username": c.Username, "uuid": c.UUID.String()}).Info("logged in")

	if rt.players != nil {
		l := players.Login{ID: c.UUID, Name: c.Username, Online: verified}
		if c.Textures != nil {
			l.Textures = c.Textures.Value
			l.Signature = c.Textures.Signature
		}
		if _, err := rt.players.Seen(l, time.Now()); err != nil {
			c.log.WithError(err).Warn("record player")
		}
	}

	jobs.WithWorld(w, func() { rt.opt.Play.Join(w, c) })
	return nil
}

// OfflineUUID is the identity assigned in offline mode: a version 3 UUID
// over the MD5 of "OfflinePlayer:" and the name, with no namespace.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}

// loginResult maps a terminal login error to its metric label.
func loginResult(err error) string {
	switch {
	case errors.Is(err, ErrOutdatedClient), errors.Is(err, ErrOutdatedServer):
		return loginOutdated
	case errors.Is(err, ErrVerifyMismatch):
		return loginMismatch
	case errors.Is(err, ErrAuthRejected):
		return loginRejected
	case errors.Is(err, session.ErrTransport), errors.Is(err, session.ErrCorruptResponse), errors.Is(err, session.ErrClosed):
		return loginAuthError
	case errors.Is(err, crypt.ErrDecrypt), errors.Is(err, crypt.ErrCipher), errors.Is(err, ErrShortSecret):
		return loginCryptoFail
	default:
		return loginProtocol
	}
}
