package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"bloodlink/internal"
	"bloodlink/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Identity is what a verified access token says about its bearer.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// KeySetFunc returns the key set tokens are verified against.
type KeySetFunc func(ctx context.Context) (jwk.Set, error)

// CachedKeySet looks url up in cache on every call. The cache refreshes the
// set in the background.
func CachedKeySet(cache *jwk.Cache, url string) KeySetFunc {
	return func(ctx context.Context) (jwk.Set, error) {
		return cache.Lookup(ctx, url)
	}
}

type JWKSVerifier struct {
	keySet KeySetFunc
	issuer string
}

func NewJWKSVerifier(keySet KeySetFunc, issuer string) *JWKSVerifier {
	return &JWKSVerifier{keySet: keySet, issuer: issuer}
}

func (v *JWKSVerifier) Verify(ctx context.Context, accessToken string) (*Identity, error) {
	set, err := v.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jwks: %w", err)
	}

	options := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse([]byte(accessToken), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwt: %w", err)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, errors.New("no subject claim in jwt")
	}

	identity := &Identity{Subject: subject}

	// Access tokens from the user pool omit these; ID tokens carry them.
	_ = token.Get("email", &identity.Email)
	_ = token.Get("name", &identity.Name)

	return identity, nil
}

func (s *Service) handlePostRegister(w http.ResponseWriter, r *http.Request) {
	var form registerForm
	if err := decodeForm(r, &form, maxJSONBodySize); err != nil {
		s.handleError(w, r, err, "failed to decode registration")
		return
	}

	input := &cognitoidentityprovider.SignUpInput{
		ClientId: aws.String(s.config.CognitoClientID),
		Username: aws.String(form.Email),
		Password: aws.String(form.Password),
		UserAttributes: []ctypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String(form.Email)},
			{Name: aws.String("name"), Value: aws.String(form.FullName)},
		},
	}

	_, err := s.cognitoClient.SignUp(r.Context(), input)
	if err != nil {
		s.logger.WithError(err).Info("failed to signup user")
		s.handleError(w, r, s.mapCognitoSignUpError(err), "failed to signup user")
		return
	}

	s.writeData(w, http.StatusCreated, map[string]any{
		"email":                form.Email,
		"confirmationRequired": true,
	})
}

func (s *Service) mapCognitoSignUpError(err error) error {
	var invalidPw *ctypes.InvalidPasswordException
	if errors.As(err, &invalidPw) {
		return fieldErrors{"password": "Password must include uppercase, lowercase, number, and symbol (min 12)."}
	}

	var userExists *ctypes.UsernameExistsException
	if errors.As(err, &userExists) {
		return fmt.Errorf("an account with this email already exists: %w", types.ErrConflict)
	}

	var invalidParam *ctypes.InvalidParameterException
	if errors.As(err, &invalidParam) {
		return fmt.Errorf("some details are invalid: %w", types.ErrInvalidInput)
	}

	return fmt.Errorf("unhandled cognito signup error: %w", err)
}

func (s *Service) handlePostRegisterConfirm(w http.ResponseWriter, r *http.Request) {
	var form confirmForm
	if err := decodeForm(r, &form, maxJSONBodySize); err != nil {
		s.handleError(w, r, err, "failed to decode confirmation")
		return
	}

	input := &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(s.config.CognitoClientID),
		Username:         aws.String(form.Email),
		ConfirmationCode: aws.String(form.Code),
	}

	_, err := s.cognitoClient.ConfirmSignUp(r.Context(), input)
	if err != nil {
		s.logger.WithError(err).Info("failed to confirm user signup")

		var codeMismatch *ctypes.CodeMismatchException
		if errors.As(err, &codeMismatch) {
			s.writeFieldErrors(w, r, fieldErrors{"code": "Invalid confirmation code. Please check the code and try again."})
			return
		}

		s.writeError(w, r, http.StatusBadRequest, "Unable to confirm account. Please try again.")
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{"confirmed": true})
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// handlePostLogin sets the encrypted session cookie and also returns the raw
// token for clients that send a bearer header instead.
func (s *Service) handlePostLogin(w http.ResponseWriter, r *http.Request) {
	var form loginForm
	if err := decodeForm(r, &form, maxJSONBodySize); err != nil {
		s.handleError(w, r, err, "failed to decode login")
		return
	}

	input := &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: ctypes.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(s.config.CognitoClientID),
		AuthParameters: map[string]string{
			"USERNAME": form.Email,
			"PASSWORD": form.Password,
		},
	}

	resp, err := s.cognitoClient.InitiateAuth(r.Context(), input)
	if err != nil {
		// NotAuthorizedException, UserNotConfirmedException, etc.
		s.logger.WithError(err).Info("failed to authenticate user")
		s.writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if resp.AuthenticationResult == nil || resp.AuthenticationResult.AccessToken == nil {
		s.writeError(w, r, http.StatusUnauthorized, "Login failed")
		return
	}

	accessToken := aws.ToString(resp.AuthenticationResult.AccessToken)
	expiresIn := int(resp.AuthenticationResult.ExpiresIn)
	if expiresIn <= 0 || expiresIn > s.config.SessionMaxAgeSec {
		expiresIn = s.config.SessionMaxAgeSec
	}

	encryptedToken, err := s.cookie.Encode(internal.COOKIE_ACCESS_TOKEN_NAME, accessToken)
	if err != nil {
		s.logger.WithError(err).Error("failed to encrypt access token")
		s.internalServerError(w, r)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    encryptedToken,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   expiresIn,
		Path:     "/",
	})

	s.writeData(w, http.StatusOK, loginResponse{AccessToken: accessToken, ExpiresIn: expiresIn})
}

func (s *Service) handlePostLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Path:     "/",
	})

	w.WriteHeader(http.StatusNoContent)
}
