package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// STK push request payload for the Daraja API
type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type darajaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPushResult is what the contribution path needs back from the gateway.
type STKPushResult struct {
	CheckoutRequestID string `json:"checkout_request_id"`
	CustomerMessage   string `json:"customer_message"`
}

// darajaClient is bounded so a slow gateway cannot hold a contribution
// request open; a timeout leaves the contribution pending, never failed.
var darajaClient = &http.Client{Timeout: 30 * time.Second}

func darajaAccessToken() (string, error) {
	baseURL := os.Getenv("DARAJA_BASE_URL") // e.g. https://sandbox.safaricom.co.ke
	key := os.Getenv("DARAJA_CONSUMER_KEY")
	secret := os.Getenv("DARAJA_CONSUMER_SECRET")

	if baseURL == "" || key == "" || secret == "" {
		log.Println("Missing DARAJA_BASE_URL, DARAJA_CONSUMER_KEY, or DARAJA_CONSUMER_SECRET")
		return "", fmt.Errorf("missing required daraja config")
	}

	req, err := http.NewRequest("GET", baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(key, secret)

	resp, err := darajaClient.Do(req)
	if err != nil {
		log.Printf("Failed to fetch daraja token: %v", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Daraja token endpoint returned status %s", resp.Status)
		return "", fmt.Errorf("daraja auth error: %s", resp.Status)
	}

	var tok darajaTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// InitiateSTKPush asks Daraja to prompt the contributor's phone for payment.
// The reference ties the asynchronous callback back to our contribution.
func InitiateSTKPush(phone string, amount float64, reference string) (*STKPushResult, error) {
	token, err := darajaAccessToken()
	if err != nil {
		return nil, err
	}

	baseURL := os.Getenv("DARAJA_BASE_URL")
	shortCode := os.Getenv("DARAJA_SHORTCODE")
	passkey := os.Getenv("DARAJA_PASSKEY")
	callbackURL := os.Getenv("DARAJA_CALLBACK_URL")

	if shortCode == "" || passkey == "" || callbackURL == "" {
		log.Println("Missing DARAJA_SHORTCODE, DARAJA_PASSKEY, or DARAJA_CALLBACK_URL")
		return nil, fmt.Errorf("missing required daraja config")
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))

	payload := stkPushRequest{
		BusinessShortCode: shortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            fmt.Sprintf("%.0f", amount),
		PartyA:            NormalizePhoneNumber(phone),
		PartyB:            shortCode,
		PhoneNumber:       NormalizePhoneNumber(phone),
		CallBackURL:       callbackURL,
		AccountReference:  reference,
		TransactionDesc:   "Event contribution",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := darajaClient.Do(req)
	if err != nil {
		log.Printf("Failed to send STK push: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Daraja STK push returned status %s", resp.Status)
		return nil, fmt.Errorf("daraja STK push error: %s", resp.Status)
	}

	var out stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, fmt.Errorf("daraja rejected STK push: %s", out.ResponseDescription)
	}

	return &STKPushResult{
		CheckoutRequestID: out.CheckoutRequestID,
		CustomerMessage:   out.CustomerMessage,
	}, nil
}
