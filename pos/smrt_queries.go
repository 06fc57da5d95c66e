package pos

const smrtCustomerFields = `
	id
	firstName
	lastName
	email
	phone
	addresses { id street street2 city state zipCode }`

const (
	smrtIntrospection = `query Introspection { __schema { queryType { name } } }`

	smrtGetCustomer = `query GetCustomer($storeId: ID!, $search: String!, $searchBy: CustomerSearchField!) {
	business {
		getCustomer(storeId: $storeId, search: $search, searchBy: $searchBy) {` + smrtCustomerFields + `
		}
	}
}`

	smrtCreateCustomer = `mutation CreateCustomer($input: CreateCustomerInput!) {
	business {
		createCustomer(input: $input) {` + smrtCustomerFields + `
		}
	}
}`

	smrtApplyPromoCode = `mutation ApplyPromoCode($customerId: ID!, $code: String!) {
	business {
		applyPromoCode(customerId: $customerId, code: $code) { success message }
	}
}`

	smrtUpdateAddress = `mutation UpdateCustomerAddress($customerId: ID!, $address: AddressInput!) {
	business {
		updateCustomerAddress(customerId: $customerId, address: $address) { id street street2 city state zipCode }
	}
}`

	smrtUpdateEmail = `mutation UpdateCustomerEmail($customerId: ID!, $email: String!) {
	business {
		updateCustomer(customerId: $customerId, input: { email: $email }) {` + smrtCustomerFields + `
		}
	}
}`

	smrtPickupDates = `query GetAvailablePickupDates($storeId: ID!, $customerId: ID!, $addressId: ID!, $phone: String!) {
	business {
		getAvailablePickupDates(storeId: $storeId, customerId: $customerId, addressId: $addressId, phone: $phone) {
			id
			date
			timeSlots { id label startTime endTime }
		}
	}
}`

	smrtCreateAppointment = `mutation CreateAppointment($input: AppointmentInput!) {
	business {
		createAppointment(input: $input) { id customerId date status confirmationNumber }
	}
}`

	smrtChargeCard = `mutation AddCardAndCharge($customerId: ID!, $card: CardInput!, $amount: Int!) {
	business {
		addCardAndCharge(customerId: $customerId, card: $card, amount: $amount) { id status amount }
	}
}`
)
