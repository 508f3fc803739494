package endpoint

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carecycle/carecycle-api/model"
	"github.com/carecycle/carecycle-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type patientListQuery struct {
	Limit       int
	Offset      int
	Keyword     string
	GroupByDate string
	SortBy      string
	SortDir     string
}

func parsePatientListQuery(c *gin.Context) patientListQuery {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return patientListQuery{
		Limit:       limit,
		Offset:      offset,
		Keyword:     c.Query("keyword"),
		GroupByDate: c.Query("group_by_date"),
		SortBy:      c.Query("sort"),                      // supported values: full_name, age
		SortDir:     strings.ToLower(c.Query("sort_dir")), // supported values: asc, desc
	}
}

// applyCreatedAtFilter applies a created_at filter for supported ranges.
// Supported values for groupByDate: "last_2_days", "last_3_months", "last_6_months".
func applyCreatedAtFilter(query *gorm.DB, groupByDate string) *gorm.DB {
	switch groupByDate {
	case "last_2_days":
		query = query.Where("created_at >= ?", time.Now().AddDate(0, 0, -2))
	case "last_3_months":
		query = query.Where("created_at >= ?", time.Now().AddDate(0, -3, 0))
	case "last_6_months":
		query = query.Where("created_at >= ?", time.Now().AddDate(0, -6, 0))
	default:
		if groupByDate != "" {
			fmt.Printf("applyCreatedAtFilter: unknown group_by_date value: %s\n", groupByDate)
		}
	}
	return query
}

func fetchPatients(db *gorm.DB, q patientListQuery) ([]model.Patient, int64, error) {
	var patients []model.Patient
	var totalPatient int64
	query := db

	// Determine order direction safely (only allow asc/desc)
	orderDir := "ASC"
	if q.SortDir == "desc" {
		orderDir = "DESC"
	}

	// Apply sorting: only whitelisted columns reach the ORDER BY; anything
	// else falls back to created_at DESC.
	if util.Contains(q.SortBy, []string{"full_name", "age"}) {
		query = query.Order(fmt.Sprintf("patients.%s %s", q.SortBy, orderDir))
	} else {
		query = query.Order("patients.created_at DESC")
	}

	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Keyword != "" {
		kw := "%" + q.Keyword + "%"
		query = query.Where("full_name LIKE ? OR address LIKE ? OR phone_number LIKE ?", kw, kw, kw)
	}
	query = applyCreatedAtFilter(query, q.GroupByDate)

	if err := query.Find(&patients).Error; err != nil {
		return nil, 0, err
	}

	db.Model(&model.Patient{}).Count(&totalPatient)
	return patients, totalPatient, nil
}

// ListPatients godoc
// @Summary      List all patients
// @Description  Get a paginated list of patients with optional filtering
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results"
// @Param        offset query int false "Offset for pagination"
// @Param        keyword query string false "Search keyword for patient name, address, or phone"
// @Param        group_by_date query string false "Filter by date range (last_2_days, last_3_months, last_6_months)"
// @Param        sort query string false "Optional sort field: full_name|age"
// @Param        sort_dir query string false "Optional sort direction: asc|desc"
// @Success      200 {object} util.APIResponse{data=object} "Patients retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient [get]
func ListPatients(c *gin.Context) {
	query := parsePatientListQuery(c)

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	patients, totalPatient, err := fetchPatients(db, query)
	if err != nil {
		util.RespondWithError(c, "Failed to retrieve patients", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patients retrieved",
		Data: map[string]interface{}{"total": totalPatient, "total_fetched": len(patients), "patients": patients},
	})
}

type createPatientRequest struct {
	FullName      string   `json:"full_name" example:"Kim Minji"`
	Gender        string   `json:"gender" example:"Female"`
	Age           int      `json:"age" example:"72"`
	Address       string   `json:"address" example:"123 Main St"`
	PhoneNumber   []string `json:"phone_number" example:"010-1234-5678"`
	HealthHistory []string `json:"health_history" example:"Diabetes,Hypertension"`
	Password      string   `json:"password,omitempty" example:"password123"`
	Email         string   `json:"email,omitempty" example:"minji@example.com"`
}

func normalizePhoneNumbers(numbers []string) []string {
	result := make([]string, 0, len(numbers))
	seen := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func hasDuplicatePatientByNameAndPhone(db *gorm.DB, fullName string, phoneNumbers []string) (bool, error) {
	if len(phoneNumbers) == 0 {
		return false, nil
	}
	phoneSet := make(map[string]struct{}, len(phoneNumbers))
	for _, p := range phoneNumbers {
		phoneSet[p] = struct{}{}
	}

	var matches []model.Patient
	if err := db.Where("full_name = ?", fullName).Find(&matches).Error; err != nil {
		return false, err
	}

	for _, m := range matches {
		stored := strings.Split(m.PhoneNumber, ",")
		for _, sp := range stored {
			if _, ok := phoneSet[strings.TrimSpace(sp)]; ok {
				return true, nil
			}
		}
	}

	return false, nil
}

func maybeCreateUser(tx *gorm.DB, req createPatientRequest) error {
	if req.Email == "" || req.Email == "-" || req.Password == "" {
		return nil
	}

	var existingUser model.User
	if err := tx.Where("email = ?", req.Email).First(&existingUser).Error; err == nil {
		return fmt.Errorf("email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return err
	}

	salt, err := util.GenerateSalt()
	if err != nil {
		return err
	}
	hashed, err := util.HashPasswordArgon2(req.Password, salt)
	if err != nil {
		return err
	}

	return tx.Create(&model.User{
		Name:         req.FullName,
		Email:        req.Email,
		Password:     hashed,
		PasswordSalt: salt,
		RoleID:       2,
	}).Error
}

func buildPatientModel(req createPatientRequest, phoneNumbers []string) model.Patient {
	return model.Patient{
		FullName:      req.FullName,
		Gender:        req.Gender,
		Age:           req.Age,
		Address:       req.Address,
		PhoneNumber:   strings.Join(phoneNumbers, ","),
		HealthHistory: strings.Join(req.HealthHistory, ","),
		Email:         req.Email,
		Password:      util.HashPassword(req.Password),
	}
}

// CreatePatient godoc
// @Summary      Create a new patient
// @Description  Register a new patient (public endpoint - no authentication required)
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Param        request body createPatientRequest true "Patient information"
// @Success      201 {object} util.APIResponse "Patient created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Patient already exists"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient [post]
func CreatePatient(c *gin.Context) {
	patientRequest := createPatientRequest{}

	if !bindJSONOrRespond(c, &patientRequest, "Invalid request body") {
		return
	}
	if patientRequest.FullName == "" || len(patientRequest.PhoneNumber) == 0 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Patient payload is empty or missing required fields",
			Err: fmt.Errorf("invalid payload"),
		})
		return
	}

	// Normalize full_name to prevent duplicate detection bypass via whitespace variations
	patientRequest.FullName = util.NormalizeName(patientRequest.FullName)
	normalizedPhones := normalizePhoneNumbers(patientRequest.PhoneNumber)
	if len(normalizedPhones) == 0 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Patient payload is empty or missing required fields",
			Err: fmt.Errorf("invalid payload"),
		})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	duplicate, err := hasDuplicatePatientByNameAndPhone(db, patientRequest.FullName, normalizedPhones)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Failed to check existing patient",
			Err: err,
		})
		return
	}
	if duplicate {
		util.CallConflictError(c, util.APIErrorParams{
			Msg: "Patient already exists with same name and phone number",
			Err: fmt.Errorf("patient duplicate detected"),
		})
		return
	}

	var created model.Patient
	err = db.Transaction(func(tx *gorm.DB) error {
		// Re-check for duplicate patient inside the transaction to avoid race conditions.
		duplicate, err := hasDuplicatePatientByNameAndPhone(tx, patientRequest.FullName, normalizedPhones)
		if err != nil {
			return err
		}
		if duplicate {
			return fmt.Errorf("patient already exists with same name and phone number")
		}

		if err := maybeCreateUser(tx, patientRequest); err != nil {
			return err
		}

		created = buildPatientModel(patientRequest, normalizedPhones)
		return tx.Create(&created).Error
	})

	if err != nil {
		util.RespondWithError(c, "Failed to create patient", err)
		return
	}

	util.CallSuccessCreated(c, util.APISuccessParams{
		Msg:  "Patient created",
		Data: created,
	})
}

func getPatientByID(c *gin.Context, db *gorm.DB) (string, model.Patient, error) {
	id := c.Param("id")
	if id == "" {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Missing patient ID",
			Err: fmt.Errorf("patient ID is required"),
		})
		return "", model.Patient{}, fmt.Errorf("patient ID is required")
	}

	var patient model.Patient
	if err := db.First(&patient, id).Error; err != nil {
		util.CallErrorNotFound(c, util.APIErrorParams{
			Msg: "Patient not found",
			Err: err,
		})
		return "", model.Patient{}, err
	}

	return id, patient, nil
}

// UpdatePatient godoc
// @Summary      Update patient information
// @Description  Update an existing patient's information
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Patient ID"
// @Param        request body model.UpdatePatientRequest true "Updated patient information"
// @Success      200 {object} util.APIResponse{data=model.Patient} "Patient updated"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient/{id} [patch]
func UpdatePatient(c *gin.Context) {
	patient := model.UpdatePatientRequest{}
	if !bindJSONOrRespond(c, &patient, "Invalid request body") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	_, existingPatient, err := getPatientByID(c, db)
	if err != nil {
		return
	}

	// Merge provided fields into existingPatient, converting phone numbers slice to comma-separated string.
	if len(patient.PhoneNumbers) > 0 {
		existingPatient.PhoneNumber = strings.Join(normalizePhoneNumbers(patient.PhoneNumbers), ",")
	}
	if patient.FullName != "" {
		existingPatient.FullName = util.NormalizeName(patient.FullName)
	}
	if patient.Gender != "" {
		existingPatient.Gender = patient.Gender
	}
	if patient.Age != 0 {
		existingPatient.Age = patient.Age
	}
	if patient.Address != "" {
		existingPatient.Address = patient.Address
	}
	if patient.HealthHistory != "" {
		existingPatient.HealthHistory = patient.HealthHistory
	}
	if patient.Email != "" {
		existingPatient.Email = patient.Email
	}
	if patient.Password != "" {
		existingPatient.Password = util.HashPassword(patient.Password)
	}

	if err := db.Save(&existingPatient).Error; err != nil {
		util.RespondWithError(c, "Failed to update patient", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patient updated",
		Data: existingPatient,
	})
}

// DeletePatient godoc
// @Summary      Delete a patient
// @Description  Soft delete a patient by ID; their schedules stop appearing in the today view
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Patient ID"
// @Success      200 {object} util.APIResponse "Patient deleted"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient/{id} [delete]
func DeletePatient(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	_, patient, err := getPatientByID(c, db)
	if err != nil {
		return
	}

	if err := db.Delete(&patient).Error; err != nil {
		util.RespondWithError(c, "Failed to delete patient", err)
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Patient deleted",
	})
}

// GetPatientInfo godoc
// @Summary      Get patient information
// @Description  Get detailed information about a specific patient
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path string true "Patient ID"
// @Success      200 {object} util.APIResponse{data=model.Patient} "Patient retrieved"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient/{id} [get]
func GetPatientInfo(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	_, patient, err := getPatientByID(c, db)
	if err != nil {
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patient retrieved",
		Data: patient,
	})
}
