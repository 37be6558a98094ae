package controllers_test

import (
	"MedicChat/models"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCustomerDirectory(t *testing.T) {
	req := require.New(t)
	app := newApp(t)
	jane := models.Customer{FirstName: "Jane", LastName: "Doe", AccountNumber: "ACC-1"}
	john := models.Customer{FirstName: "John", LastName: "Roe", AccountNumber: "ACC-2"}
	req.NoError(app.db.Create(&jane).Error)
	req.NoError(app.db.Create(&john).Error)

	var list []models.Customer
	w := app.do(http.MethodGet, "/", "")
	req.Equal(http.StatusOK, w.Code)
	req.NoError(json.Unmarshal(w.Body.Bytes(), &list))
	req.Len(list, 2)
	req.Equal(jane.ID, list[0].ID)

	w = app.do(http.MethodGet, "/customers", "")
	req.Equal(http.StatusOK, w.Code)
	req.NoError(json.Unmarshal(w.Body.Bytes(), &list))
	req.Equal(john.ID, list[0].ID)

	w = app.do(http.MethodGet, "/customer/"+strconv.FormatUint(uint64(jane.ID), 10), "")
	req.Equal(http.StatusOK, w.Code)
	var got models.Customer
	req.NoError(json.Unmarshal(w.Body.Bytes(), &got))
	req.Equal("Jane", got.FirstName)
	req.Equal("ACC-1", got.AccountNumber)
	req.Contains(w.Body.String(), `"email_email":null`)
}

func TestGetCustomerErrors(t *testing.T) {
	app := newApp(t)

	w := app.do(http.MethodGet, "/customer/42", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.JSONEq(t, `{"error":"Customer not found"}`, w.Body.String())

	w = app.do(http.MethodGet, "/customer/abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCustomersEmpty(t *testing.T) {
	w := newApp(t).do(http.MethodGet, "/customers", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}
