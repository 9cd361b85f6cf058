package utils

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var commonFirstNames = []string{
	"Ana", "Maria", "José", "João", "Antônio", "Francisco", "Carlos", "Paulo",
	"Pedro", "Lucas", "Luiz", "Marcos", "Gabriel", "Rafael", "Juliana", "Mariana",
	"Fernanda", "Patrícia", "Aline", "Camila", "Bruna", "Severino", "Raimundo", "Josefa",
}
var commonSurnames = []string{
	"Silva", "Santos", "Oliveira", "Souza", "Lima", "Pereira", "Ferreira", "Costa",
	"Rodrigues", "Almeida", "Nascimento", "Alves", "Carvalho", "Araújo", "Ribeiro", "Barbosa",
	"Cavalcanti", "Albuquerque", "Lins", "Monteiro",
}

func GenerateRandomFullName() string {
	first := commonFirstNames[rand.Intn(len(commonFirstNames))]
	surnameLength := rand.Intn(2) + 1
	parts := []string{first}

	for i := 0; i < surnameLength; i++ {
		parts = append(parts, commonSurnames[rand.Intn(len(commonSurnames))])
	}
	return strings.Join(parts, " ")
}

var roles = []domain.Role{
	domain.RoleViewer,
	domain.RoleDispatcher,
	domain.RoleAdmin,
}

func GenerateRandomRole() domain.Role {
	return roles[rand.Intn(len(roles))]
}

var digits = "0123456789"

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// GenerateUsernameFromFullName 取每个部分的前缀拼接，再加上几位随机数字
func GenerateUsernameFromFullName(fullName string) string {
	username := ""

	for _, part := range strings.Fields(strings.ToLower(fullName)) {
		part = accentReplacer.Replace(part)
		length := rand.Intn(len(part)) + 1
		username += part[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.Intn(len(digits))])
	}

	return username
}

func GenerateRandomUser(password string, emailDomainName string) (*domain.User, error) {
	fullName := GenerateRandomFullName()
	username := GenerateUsernameFromFullName(fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Role:         GenerateRandomRole(),
	}

	return user, nil
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*")

func GenerateRandomPassword(length int) string {
	random_password := make([]rune, length)
	for i := range random_password {
		random_password[i] = letters[rand.Intn(len(letters))]
	}
	return string(random_password)
}

func GenerateRandomID(letterLength int, digitLength int) string {
	random_id := make([]rune, letterLength+digitLength)
	for i := range random_id {
		if i < letterLength {
			random_id[i] = letters[rand.Intn(len(letters))]
		} else {
			random_id[i] = rune(digits[rand.Intn(len(digits))])
		}
	}
	return string(random_id)
}

// 随机数据都生成在累西腓都会区附近
const (
	recifeLatitude  = -8.05
	recifeLongitude = -34.9
	spreadDegrees   = 0.6
)

var municipalities = []string{
	"Recife", "Olinda", "Jaboatão dos Guararapes", "Paulista", "Camaragibe",
	"Cabo de Santo Agostinho", "Igarassu", "São Lourenço da Mata",
}

var specialties = []domain.Specialty{
	"cardiologia", "dermatologia", "endocrinologia", "gastroenterologia",
	"neurologia", "oftalmologia", "ortopedia", "otorrinolaringologia",
	"pneumologia", "reumatologia", "urologia", "nefrologia",
}

func randomCoordinate() (float64, float64) {
	latitude := recifeLatitude + (rand.Float64()*2-1)*spreadDegrees
	longitude := recifeLongitude + (rand.Float64()*2-1)*spreadDegrees
	return latitude, longitude
}

// 用 Fisher-Yates 洗牌算法来生成一个随机的专科子集
func GenerateRandomSpecialties() []domain.Specialty {
	sps := append([]domain.Specialty{}, specialties...) // 复制数组，避免修改原数组

	for i := len(sps) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		sps[i], sps[j] = sps[j], sps[i]
	}

	n := rand.Intn(len(sps)) + 1
	return sps[:n]
}

func GenerateRandomFacility() *domain.Facility {
	latitude, longitude := randomCoordinate()
	municipality := municipalities[rand.Intn(len(municipalities))]

	return &domain.Facility{
		Name:           "UPAE " + municipality + " " + GenerateRandomID(0, 4),
		Municipality:   municipality,
		Address:        fmt.Sprintf("Rua %s, %d", commonSurnames[rand.Intn(len(commonSurnames))], rand.Intn(2000)+1),
		Latitude:       latitude,
		Longitude:      longitude,
		Specialties:    GenerateRandomSpecialties(),
		TransportScore: float64(rand.Intn(101)) / 100,
		WaitDays:       float64(rand.Intn(60)),
	}
}

func GenerateRandomPatient() *domain.Patient {
	latitude, longitude := randomCoordinate()

	return &domain.Patient{
		FullName:  GenerateRandomFullName(),
		Latitude:  latitude,
		Longitude: longitude,
		Specialty: specialties[rand.Intn(len(specialties))],
		Status:    domain.PatientStatusWaiting,
	}
}
